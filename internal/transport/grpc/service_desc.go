package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "salonbook.v1.Booking"

	methodListAvailableSlots      = "ListAvailableSlots"
	methodBookAppointment         = "BookAppointment"
	methodRescheduleAppointment   = "RescheduleAppointment"
	methodGetAppointment          = "GetAppointment"
	methodUpdateAppointmentStatus = "UpdateAppointmentStatus"
)

// FullMethod returns the "/service/method" name used in interceptors.
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

type BookingServiceServer interface {
	ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error)
	BookAppointment(context.Context, *BookAppointmentRequest) (*AppointmentResponse, error)
	RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*AppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*AppointmentResponse, error)
	UpdateAppointmentStatus(context.Context, *UpdateAppointmentStatusRequest) (*AppointmentResponse, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

// unaryHandler adapts a typed method to grpc's handler signature, running
// the interceptor chain when one is installed.
func unaryHandler[Req any, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodListAvailableSlots,
			Handler:    unaryHandler(methodListAvailableSlots, BookingServiceServer.ListAvailableSlots),
		},
		{
			MethodName: methodBookAppointment,
			Handler:    unaryHandler(methodBookAppointment, BookingServiceServer.BookAppointment),
		},
		{
			MethodName: methodRescheduleAppointment,
			Handler:    unaryHandler(methodRescheduleAppointment, BookingServiceServer.RescheduleAppointment),
		},
		{
			MethodName: methodGetAppointment,
			Handler:    unaryHandler(methodGetAppointment, BookingServiceServer.GetAppointment),
		},
		{
			MethodName: methodUpdateAppointmentStatus,
			Handler:    unaryHandler(methodUpdateAppointmentStatus, BookingServiceServer.UpdateAppointmentStatus),
		},
	},
	Streams: []grpc.StreamDesc{},
}
