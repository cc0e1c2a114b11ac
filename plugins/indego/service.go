package indego

import (
	context "context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// IndegoServer is the server API for indego.v1.IndegoService.
type IndegoServer interface {
	ListMowers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Poll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IndegoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListMowers", Handler: unaryHandler("ListMowers", IndegoServer.ListMowers)},
		{MethodName: "GetState", Handler: unaryHandler("GetState", IndegoServer.GetState)},
		{MethodName: "Poll", Handler: unaryHandler("Poll", IndegoServer.Poll)},
		{MethodName: "SetState", Handler: unaryHandler("SetState", IndegoServer.SetState)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

type unaryMethod func(IndegoServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(IndegoServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IndegoServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type indegoService struct {
	mowers []*Mower
}

// RegisterIndegoService exposes the mowers over gRPC.
func RegisterIndegoService(server *grpc.Server, mowers []*Mower) error {
	if err := registerDescriptor(); err != nil {
		return err
	}
	server.RegisterService(&serviceDesc, &indegoService{mowers: mowers})
	return nil
}

func (s *indegoService) ListMowers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx
	if len(s.mowers) == 0 {
		return nil, status.Error(codes.FailedPrecondition, "indego mowers not configured")
	}
	list := make([]any, 0, len(s.mowers))
	for _, mower := range s.mowers {
		list = append(list, mowerFields(mower))
	}
	return toStruct(map[string]any{"mowers": list})
}

func (s *indegoService) GetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx
	mower, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	return toStruct(mowerFields(mower))
}

func (s *indegoService) Poll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mower, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	err = mower.Poller.Poll(ctx)
	if errors.Is(err, ErrBusy) {
		return nil, status.Error(codes.Unavailable, "request already in flight")
	}
	fields := mowerFields(mower)
	fields["result"] = outcome(err)
	if err != nil {
		fields["error"] = err.Error()
	}
	return toStruct(fields)
}

func (s *indegoService) SetState(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mower, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	value := stringField(req, "action")
	if value == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}
	action := mower.Poller.NextAction()
	if !strings.EqualFold(value, "toggle") {
		action, err = ParseAction(value)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	err = mower.Poller.SetDesiredState(ctx, action)
	if errors.Is(err, ErrBusy) {
		return nil, status.Error(codes.Unavailable, "request already in flight")
	}
	fields := mowerFields(mower)
	fields["action"] = string(action)
	fields["result"] = outcome(err)
	if err != nil {
		fields["error"] = err.Error()
	}
	return toStruct(fields)
}

// resolve finds the mower named in the request; the name may be omitted when
// only one mower is configured.
func (s *indegoService) resolve(req *structpb.Struct) (*Mower, error) {
	if len(s.mowers) == 0 {
		return nil, status.Error(codes.FailedPrecondition, "indego mowers not configured")
	}
	name := stringField(req, "mower")
	if name == "" {
		if len(s.mowers) == 1 {
			return s.mowers[0], nil
		}
		return nil, status.Error(codes.InvalidArgument, "mower is required")
	}
	for _, mower := range s.mowers {
		if strings.EqualFold(mower.Name, name) {
			return mower, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "mower %q not found", name)
}

func mowerFields(mower *Mower) map[string]any {
	snap := mower.Poller.Snapshot()
	fields := map[string]any{
		"name":          mower.Name,
		"model":         mower.Model,
		"serial":        snap.Session.Serial,
		"state":         snap.State.String(),
		"mowing":        snap.State.Mowing(),
		"authenticated": snap.Session.Authenticated,
		"in_flight":     snap.InFlight,
	}
	if snap.HasRawCode {
		fields["code"] = snap.RawCode
		fields["status"] = StatusName(snap.RawCode)
	}
	if !snap.LastSuccess.IsZero() {
		fields["last_success"] = snap.LastSuccess.UTC().Format(time.RFC3339)
	}
	if snap.LastCommand != "" {
		fields["last_command"] = string(snap.LastCommand)
	}
	return fields
}

func stringField(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	value, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}

func toStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
