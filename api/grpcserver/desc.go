package grpcserver

import (
	"context"

	pb "lethe/api/pb"

	"google.golang.org/grpc"
)

// StoreServiceServer is the handler set of the store API.
type StoreServiceServer interface {
	Put(context.Context, *pb.PutRequest) (*pb.PutResponse, error)
	Get(context.Context, *pb.GetRequest) (*pb.GetResponse, error)
	Delete(context.Context, *pb.DeleteRequest) (*pb.DeleteResponse, error)
	Stats(context.Context, *pb.StatsRequest) (*pb.StatsResponse, error)
}

// Register attaches the store service to a gRPC server.
func Register(gs grpc.ServiceRegistrar, srv StoreServiceServer) {
	gs.RegisterService(&ServiceDesc, srv)
}

const serviceName = "lethe.StoreService"

// ServiceDesc is the hand-written descriptor of the store service; the
// messages travel through the pb codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StoreServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Delete", Handler: deleteHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lethe/api",
}

func putHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServiceServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Put"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServiceServer).Put(ctx, req.(*pb.PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServiceServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServiceServer).Get(ctx, req.(*pb.GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServiceServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Delete"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServiceServer).Delete(ctx, req.(*pb.DeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServiceServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServiceServer).Stats(ctx, req.(*pb.StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
