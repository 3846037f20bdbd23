package docs

import "encoding/json"

// Document shapes as written by the driver apps, the dispatch backend and
// the payment webhooks. None of those writers is under our control, so
// every field beyond the document id is optional: absent fields decode to
// their zero value and must be safe to read.

type DriverStatus string

const (
	DriverVerified  DriverStatus = "verified"
	DriverActive    DriverStatus = "active"
	DriverInactive  DriverStatus = "inactive"
	DriverSuspended DriverStatus = "suspended"
)

type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

type Vehicle struct {
	Brand  string `json:"brand"`
	Model  string `json:"model"`
	Plates string `json:"plates"`
	Color  string `json:"color,omitempty"`
}

type DocumentRecord struct {
	PhotoURL  string     `json:"photoUrl,omitempty"`
	ExpiresAt *Timestamp `json:"expiresAt,omitempty"`
}

type DriverDocuments struct {
	SCTLicense  *DocumentRecord `json:"sctLicense,omitempty"`
	VehicleCard *DocumentRecord `json:"vehicleCard,omitempty"`
	Insurance   *DocumentRecord `json:"insurance,omitempty"`
}

type Driver struct {
	ID string `json:"-"`

	UID    string       `json:"uid"`
	Name   string       `json:"name"`
	Phone  string       `json:"phone"`
	Email  string       `json:"email"`
	Status DriverStatus `json:"status"`
	Online bool         `json:"online"`

	StripeAccountID        string `json:"stripeAccountId,omitempty"`
	StripeStatus           string `json:"stripeStatus,omitempty"`
	StripeChargesEnabled   bool   `json:"stripeChargesEnabled"`
	StripeDetailsSubmitted bool   `json:"stripeDetailsSubmitted"`

	SubscriptionActive    bool       `json:"subscriptionActive"`
	SubscriptionExpiresAt *Timestamp `json:"subscriptionExpiresAt,omitempty"`

	Location *Location `json:"location,omitempty"`
	Vehicle  *Vehicle  `json:"vehicle,omitempty"`

	PhotoURL         string           `json:"photoUrl,omitempty"`
	Rating           *float64         `json:"rating,omitempty"`
	TotalTrips       *int             `json:"totalTrips,omitempty"`
	AcceptanceRate   *float64         `json:"acceptanceRate,omitempty"`
	CancellationRate *float64         `json:"cancellationRate,omitempty"`
	AvgArrivalTime   *float64         `json:"avgArrivalTime,omitempty"`
	Documents        *DriverDocuments `json:"documents,omitempty"`

	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// Operational reports whether the driver is allowed to take trips.
func (d Driver) Operational() bool {
	return d.Status == DriverVerified || d.Status == DriverActive
}

// DisplayName falls back to "Unknown" so alert and list rendering never
// shows an empty subject.
func (d Driver) DisplayName() string {
	if d.Name == "" {
		return "Unknown"
	}
	return d.Name
}

type TripStatus string

const (
	TripPending   TripStatus = "pending"
	TripRequested TripStatus = "requested"
	TripAccepted  TripStatus = "accepted"
	TripOnTheWay  TripStatus = "on_the_way"
	TripArrived   TripStatus = "arrived"
	TripStarted   TripStatus = "started"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// ActiveTripStatuses is the non-terminal slice of the trip lifecycle; the
// trips subscription filters on exactly this set.
var ActiveTripStatuses = []TripStatus{
	TripPending, TripRequested, TripAccepted, TripOnTheWay, TripArrived, TripStarted,
}

type Place struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type FareBreakdown struct {
	Base     float64 `json:"base"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
	Surge    float64 `json:"surge"`
}

type TripRating struct {
	Passenger        *float64 `json:"passenger,omitempty"`
	Driver           *float64 `json:"driver,omitempty"`
	PassengerComment string   `json:"passengerComment,omitempty"`
	DriverComment    string   `json:"driverComment,omitempty"`
}

type Trip struct {
	ID string `json:"-"`

	PassengerID   string     `json:"passengerId"`
	DriverID      string     `json:"driverId,omitempty"`
	Status        TripStatus `json:"status"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`

	Pickup      Place `json:"pickup"`
	Destination Place `json:"destination"`

	FareEstimated float64        `json:"fareEstimated"`
	FareFinal     *float64       `json:"fareFinal,omitempty"`
	FareBreakdown *FareBreakdown `json:"fareBreakdown,omitempty"`

	Rating *TripRating `json:"rating,omitempty"`

	CreatedAt   Timestamp  `json:"createdAt"`
	AcceptedAt  *Timestamp `json:"acceptedAt,omitempty"`
	StartedAt   *Timestamp `json:"startedAt,omitempty"`
	CompletedAt *Timestamp `json:"completedAt,omitempty"`
}

// InProgress reports whether a driver is supposed to be moving right now.
func (t Trip) InProgress() bool {
	switch t.Status {
	case TripAccepted, TripOnTheWay, TripArrived, TripStarted:
		return true
	}
	return false
}

type Passenger struct {
	ID string `json:"-"`

	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	FCMToken  string    `json:"fcmToken,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
}

func DecodeDriver(id string, data []byte) (Driver, error) {
	var d Driver
	if err := json.Unmarshal(data, &d); err != nil {
		return Driver{}, err
	}
	d.ID = id
	return d, nil
}

func DecodeTrip(id string, data []byte) (Trip, error) {
	var t Trip
	if err := json.Unmarshal(data, &t); err != nil {
		return Trip{}, err
	}
	t.ID = id
	return t, nil
}

func DecodePassenger(id string, data []byte) (Passenger, error) {
	var p Passenger
	if err := json.Unmarshal(data, &p); err != nil {
		return Passenger{}, err
	}
	p.ID = id
	return p, nil
}
