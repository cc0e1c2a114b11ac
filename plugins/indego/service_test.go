package indego

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialService(t *testing.T, mowers []*Mower) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	require.NoError(t, RegisterIndegoService(server, mowers))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	out := &structpb.Struct{}
	err = conn.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out)
	return out, err
}

func TestServiceDescriptorRegistered(t *testing.T) {
	require.NoError(t, registerDescriptor())

	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	require.NoError(t, err)
	svc, ok := desc.(protoreflect.ServiceDescriptor)
	require.True(t, ok)
	require.Equal(t, len(serviceMethods), svc.Methods().Len())
	assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), svc.Methods().ByName("Poll").Input().FullName())
}

func TestServiceOverGRPC(t *testing.T) {
	vendor := newFakeVendor(t)
	mower := authenticatedMower(t, vendor, MowerConfig{Name: "Lawn", Model: "Indego M+"})
	conn := dialService(t, []*Mower{mower})

	out, err := invoke(t, conn, "ListMowers", nil)
	require.NoError(t, err)
	mowers := out.GetFields()["mowers"].GetListValue().GetValues()
	require.Len(t, mowers, 1)
	first := mowers[0].GetStructValue().GetFields()
	assert.Equal(t, "Lawn", first["name"].GetStringValue())
	assert.Equal(t, "Indego M+", first["model"].GetStringValue())
	assert.Equal(t, "1234567", first["serial"].GetStringValue())
	assert.Equal(t, "unknown", first["state"].GetStringValue())

	vendor.setCode(516)
	out, err = invoke(t, conn, "Poll", map[string]any{"mower": "lawn"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.GetFields()["result"].GetStringValue())
	assert.Equal(t, "mowing", out.GetFields()["state"].GetStringValue())
	assert.Equal(t, float64(516), out.GetFields()["code"].GetNumberValue())

	out, err = invoke(t, conn, "SetState", map[string]any{"action": "toggle"})
	require.NoError(t, err)
	assert.Equal(t, "returnToDock", out.GetFields()["action"].GetStringValue())
	assert.Equal(t, "returnToDock", out.GetFields()["last_command"].GetStringValue())
	assert.Equal(t, 1, vendor.count(http.MethodPut))

	out, err = invoke(t, conn, "GetState", nil)
	require.NoError(t, err)
	assert.True(t, out.GetFields()["mowing"].GetBoolValue())
}

func TestServiceErrors(t *testing.T) {
	vendor := newFakeVendor(t)
	lawn := vendor.mower(MowerConfig{Name: "Lawn"})
	back := vendor.mower(MowerConfig{Name: "Back"})
	conn := dialService(t, []*Mower{lawn, back})

	_, err := invoke(t, conn, "GetState", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "GetState", map[string]any{"mower": "Side"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(t, conn, "SetState", map[string]any{"mower": "Back"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(t, conn, "SetState", map[string]any{"mower": "Back", "action": "pause"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	empty := dialService(t, nil)
	_, err = invoke(t, empty, "ListMowers", nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestServicePollReportsFailure(t *testing.T) {
	vendor := newFakeVendor(t)
	mower := authenticatedMower(t, vendor, MowerConfig{Name: "Lawn"})
	vendor.state = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	svc := &indegoService{mowers: []*Mower{mower}}

	out, err := svc.Poll(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, "auth_expired", out.GetFields()["result"].GetStringValue())
	assert.NotEmpty(t, out.GetFields()["error"].GetStringValue())
	assert.False(t, out.GetFields()["authenticated"].GetBoolValue())
}
