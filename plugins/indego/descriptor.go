package indego

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "indego.v1.IndegoService"
	protoFile   = "indego/v1/indego.proto"
	structType  = ".google.protobuf.Struct"
)

var serviceMethods = []string{"ListMowers", "GetState", "Poll", "SetState"}

var (
	registerOnce sync.Once
	registerErr  error
)

// registerDescriptor publishes the service schema to the global registry so
// server reflection can describe it. Requests and responses are Structs.
func registerDescriptor() error {
	registerOnce.Do(func() {
		if _, err := protoregistry.GlobalFiles.FindFileByPath(protoFile); err == nil {
			return
		}
		// Link the Struct descriptor before resolving the dependency.
		_ = structpb.File_google_protobuf_struct_proto

		methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(serviceMethods))
		for _, name := range serviceMethods {
			methods = append(methods, &descriptorpb.MethodDescriptorProto{
				Name:       proto.String(name),
				InputType:  proto.String(structType),
				OutputType: proto.String(structType),
			})
		}
		fd := &descriptorpb.FileDescriptorProto{
			Name:       proto.String(protoFile),
			Package:    proto.String("indego.v1"),
			Dependency: []string{"google/protobuf/struct.proto"},
			Syntax:     proto.String("proto3"),
			Service: []*descriptorpb.ServiceDescriptorProto{{
				Name:   proto.String("IndegoService"),
				Method: methods,
			}},
		}
		file, err := protodesc.NewFile(fd, protoregistry.GlobalFiles)
		if err != nil {
			registerErr = fmt.Errorf("build indego descriptor: %w", err)
			return
		}
		if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
			registerErr = fmt.Errorf("register indego descriptor: %w", err)
		}
	})
	return registerErr
}
