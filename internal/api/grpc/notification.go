package grpc

import (
	"context"

	"ubertool-booking/internal/service"
)

type NotificationHandler struct {
	noteSvc service.NotificationService
}

func NewNotificationHandler(noteSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{noteSvc: noteSvc}
}

func (h *NotificationHandler) GetNotifications(ctx context.Context, req *GetNotificationsRequest) (*GetNotificationsResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	notes, count, err := h.noteSvc.GetNotifications(ctx, userID, req.Page, req.PageSize)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &GetNotificationsResponse{Notifications: make([]Notification, 0, len(notes)), TotalCount: count}
	for _, n := range notes {
		resp.Notifications = append(resp.Notifications, MapDomainNotificationToProto(n))
	}
	return resp, nil
}

func (h *NotificationHandler) MarkNotificationRead(ctx context.Context, req *MarkNotificationReadRequest) (*MarkNotificationReadResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.noteSvc.MarkAsRead(ctx, userID, req.NotificationID); err != nil {
		return nil, toStatus(err)
	}
	return &MarkNotificationReadResponse{Success: true}, nil
}
