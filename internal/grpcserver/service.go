package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "jobmate.matching.v1.MatchService"

// MatchServiceServer is the server API for MatchService. Requests and
// responses are protobuf well-known types so that no generated code is
// needed; structured payloads travel as google.protobuf.Struct.
type MatchServiceServer interface {
	RunForJob(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RunForCandidate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QualifiedCandidates(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountForCandidate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes MatchService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunForJob", Handler: runForJobHandler},
		{MethodName: "RunForCandidate", Handler: runForCandidateHandler},
		{MethodName: "QualifiedCandidates", Handler: qualifiedCandidatesHandler},
		{MethodName: "CountForCandidate", Handler: countForCandidateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/matching/v1/match.proto",
}

func runForJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).RunForJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RunForJob"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).RunForJob(ctx, req.(*wrapperspb.StringValue))
	})
}

func runForCandidateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).RunForCandidate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RunForCandidate"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).RunForCandidate(ctx, req.(*structpb.Struct))
	})
}

func qualifiedCandidatesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).QualifiedCandidates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/QualifiedCandidates"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).QualifiedCandidates(ctx, req.(*structpb.Struct))
	})
}

func countForCandidateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatchServiceServer).CountForCandidate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CountForCandidate"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(MatchServiceServer).CountForCandidate(ctx, req.(*wrapperspb.StringValue))
	})
}
