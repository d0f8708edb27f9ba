package notify

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

const previewLength = 50

func amount(v float64) string {
	return "₹" + strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Service) OfferReceived(ctx context.Context, clientID, freelancerName, jobTitle string, offer float64) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: clientID,
		Kind:   domain.KindOfferReceived,
		Title:  "New Offer Received",
		Body:   fmt.Sprintf("%s made an offer of %s for \"%s\"", freelancerName, amount(offer), jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "offerAmount": offer, "freelancerName": freelancerName},
	})
}

func (s *Service) OfferAccepted(ctx context.Context, freelancerID, clientName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: freelancerID,
		Kind:   domain.KindOfferAccepted,
		Title:  "Offer Accepted",
		Body:   fmt.Sprintf("%s accepted your offer for \"%s\"", clientName, jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "clientName": clientName},
	})
}

func (s *Service) OfferRejected(ctx context.Context, freelancerID, clientName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: freelancerID,
		Kind:   domain.KindOfferRejected,
		Title:  "Offer Rejected",
		Body:   fmt.Sprintf("%s rejected your offer for \"%s\"", clientName, jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "clientName": clientName},
	})
}

func (s *Service) JobAssigned(ctx context.Context, freelancerID, clientName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: freelancerID,
		Kind:   domain.KindJobAssigned,
		Title:  "Job Assigned",
		Body:   fmt.Sprintf("You have been assigned to \"%s\" by %s", jobTitle, clientName),
		Data:   map[string]any{"jobTitle": jobTitle, "clientName": clientName},
	})
}

func (s *Service) JobCompleted(ctx context.Context, clientID, freelancerName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: clientID,
		Kind:   domain.KindJobCompleted,
		Title:  "Job Completed",
		Body:   fmt.Sprintf("%s marked \"%s\" as completed", freelancerName, jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "freelancerName": freelancerName},
	})
}

func (s *Service) JobPickedUp(ctx context.Context, clientID, freelancerName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: clientID,
		Kind:   domain.KindJobPickedUp,
		Title:  "Job Picked Up",
		Body:   fmt.Sprintf("%s picked up your job \"%s\"", freelancerName, jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "freelancerName": freelancerName},
	})
}

func (s *Service) PaymentReceived(ctx context.Context, freelancerID, clientName string, paid float64, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: freelancerID,
		Kind:   domain.KindPaymentReceived,
		Title:  "Payment Received",
		Body:   fmt.Sprintf("You received %s from %s for \"%s\"", amount(paid), clientName, jobTitle),
		Data:   map[string]any{"amount": paid, "clientName": clientName, "jobTitle": jobTitle},
	})
}

func (s *Service) PaymentSent(ctx context.Context, clientID, freelancerName string, paid float64, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: clientID,
		Kind:   domain.KindPaymentSent,
		Title:  "Payment Sent",
		Body:   fmt.Sprintf("You paid %s to %s for \"%s\"", amount(paid), freelancerName, jobTitle),
		Data:   map[string]any{"amount": paid, "freelancerName": freelancerName, "jobTitle": jobTitle},
	})
}

func (s *Service) WorkDone(ctx context.Context, clientID, freelancerName, jobTitle string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: clientID,
		Kind:   domain.KindWorkDone,
		Title:  "Work Completed",
		Body:   fmt.Sprintf("%s marked work as done for \"%s\"", freelancerName, jobTitle),
		Data:   map[string]any{"jobTitle": jobTitle, "freelancerName": freelancerName},
	})
}

func (s *Service) ChatMessage(ctx context.Context, recipientID, senderName, preview string) (*domain.Notification, error) {
	return s.Notify(ctx, Request{
		UserID: recipientID,
		Kind:   domain.KindChatMessage,
		Title:  "New Message",
		Body:   senderName + ": " + truncate(preview, previewLength),
		Data:   map[string]any{"senderName": senderName, "messagePreview": preview},
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
