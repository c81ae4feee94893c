package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/example/ride-negotiation/internal/models"
)

// FCMPusher posts JSON to the FCM HTTP v1 send endpoint. Devices subscribe to
// the topic "user-<id>".
type FCMPusher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewFCMPusher(endpoint, key string) *FCMPusher {
	return &FCMPusher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMPusher) Name() string { return "fcm" }

func (f *FCMPusher) Push(ctx context.Context, n models.Notification) error {
	data := map[string]string{
		"notification_id": n.ID.String(),
		"type":            string(n.Type),
	}
	if n.RideID != nil {
		data["ride_id"] = n.RideID.String()
	}
	body := map[string]any{
		"message": map[string]any{
			"topic":        "user-" + n.UserID.String(),
			"notification": map[string]string{"title": n.Title, "body": n.Message},
			"data":         data,
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("fcm status %d", resp.StatusCode)
	}
	return nil
}
