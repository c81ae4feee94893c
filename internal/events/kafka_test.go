package events

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/models"
)

func TestRideMessageKeyedByRide(t *testing.T) {
	driver := uuid.New()
	price := 18.0
	r := models.Ride{ID: uuid.New(), PassengerID: uuid.New(), DriverID: &driver, FinalPrice: &price, Status: models.StatusAccepted, UpdatedAt: time.Now()}
	msg, err := rideMessage(NewRideEvent(r, r.PassengerID))
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != r.ID.String() {
		t.Fatalf("key %s", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "accepted" {
		t.Fatalf("headers %+v", msg.Headers)
	}
	var decoded RideEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.DriverID == nil || *decoded.DriverID != driver || *decoded.FinalPrice != 18 {
		t.Fatalf("decoded %+v", decoded)
	}
}

func TestLocationMessageKeyedByDriver(t *testing.T) {
	msg, err := locationMessage(models.DriverLocation{DriverID: "d-1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "d-1" {
		t.Fatalf("key %s", msg.Key)
	}
}
