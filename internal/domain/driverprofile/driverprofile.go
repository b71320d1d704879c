// Package driverprofile models DriverProfile (§3): the one-per-driver
// vehicle, verification and operational-status record.
package driverprofile

import (
	"errors"
	"strings"
	"time"
)

type VehicleType string

const (
	VehicleEconomy VehicleType = "Economy"
	VehicleComfort VehicleType = "Comfort"
	VehicleLuxury  VehicleType = "Luxury"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleEconomy, VehicleComfort, VehicleLuxury:
		return true
	default:
		return false
	}
}

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

// OperationalStatus mirrors the durable "what is this driver doing" column;
// it is distinct from C3's ephemeral online/available flags in the
// key-value store, which are the source of truth for dispatch.
type OperationalStatus string

const (
	OperationalOffline   OperationalStatus = "offline"
	OperationalOnline    OperationalStatus = "online"
	OperationalOnTrip    OperationalStatus = "on_trip"
	OperationalSuspended OperationalStatus = "suspended"
)

var (
	ErrLicenseRequired    = errors.New("license number is required")
	ErrPlateRequired      = errors.New("vehicle plate is required")
	ErrInvalidVehicleType = errors.New("invalid vehicle type")
	ErrInvalidRating      = errors.New("rating average must be within [0,5]")
)

type Vehicle struct {
	Type     VehicleType
	Plate    string // UNIQUE
	Make     string
	Model    string
	Color    string
	Year     int
	PhotoURL string
}

// DriverProfile is the domain entity corresponding to `driver_profiles`.
type DriverProfile struct {
	AccountID          string
	LicenseNumber      string
	LicenseExpiry      time.Time
	CNINumber          string
	CNIExpiry          time.Time
	InsuranceNumber    string
	InsuranceExpiry    time.Time
	DocumentURLs       []string
	Verification       VerificationStatus
	Vehicle            Vehicle
	RatingAverage      float64
	RatingCount        int
	OperationalStatus  OperationalStatus
	Tier               string // used by earning-rule condition matching
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func New(accountID, licenseNumber string, vehicle Vehicle) (*DriverProfile, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("account id is required")
	}
	if strings.TrimSpace(licenseNumber) == "" {
		return nil, ErrLicenseRequired
	}
	if !vehicle.Type.Valid() {
		return nil, ErrInvalidVehicleType
	}
	if strings.TrimSpace(vehicle.Plate) == "" {
		return nil, ErrPlateRequired
	}

	now := time.Now().UTC()
	return &DriverProfile{
		AccountID:         accountID,
		LicenseNumber:     licenseNumber,
		Vehicle:           vehicle,
		Verification:      VerificationUnverified,
		RatingAverage:     5.0,
		RatingCount:       0,
		OperationalStatus: OperationalOffline,
		Tier:              "standard",
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ApplyRating folds a new 1..5 star rating into the running average.
func (d *DriverProfile) ApplyRating(stars int) error {
	if stars < 1 || stars > 5 {
		return errors.New("stars must be within [1,5]")
	}
	total := d.RatingAverage * float64(d.RatingCount)
	d.RatingCount++
	d.RatingAverage = round2(( total + float64(stars) ) / float64(d.RatingCount))
	d.touch()
	return nil
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func (d *DriverProfile) touch() { d.UpdatedAt = time.Now().UTC() }
