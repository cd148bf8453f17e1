package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		// Return disabled app
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// StartTransaction starts a new transaction
func (nr *NewRelicApp) StartTransaction(name string) *newrelic.Transaction {
	if !nr.enabled || nr.Application == nil {
		return nil
	}
	return nr.Application.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// Custom event helpers

// RecordRideRequested records a new ride request
func (nr *NewRelicApp) RecordRideRequested(rideID string) {
	nr.RecordCustomEvent("RideRequested", map[string]interface{}{
		"ride_id":   rideID,
		"timestamp": time.Now().Unix(),
	})
}

// RecordRideAccepted records a driver accepting a ride
func (nr *NewRelicApp) RecordRideAccepted(rideID, driverID string) {
	nr.RecordCustomEvent("RideAccepted", map[string]interface{}{
		"ride_id":   rideID,
		"driver_id": driverID,
	})
}

// RecordRideCompleted records ride completion
func (nr *NewRelicApp) RecordRideCompleted(rideID string, fare float64) {
	nr.RecordCustomEvent("RideCompleted", map[string]interface{}{
		"ride_id": rideID,
		"fare":    fare,
	})
}

// RecordRideCancelled records ride cancellation
func (nr *NewRelicApp) RecordRideCancelled(rideID string, cancelledBy string) {
	nr.RecordCustomEvent("RideCancelled", map[string]interface{}{
		"ride_id":      rideID,
		"cancelled_by": cancelledBy,
	})
}

// RecordDriverStatusChange records a driver going online or offline
func (nr *NewRelicApp) RecordDriverStatusChange(driverID string, online bool) {
	nr.RecordCustomEvent("DriverStatusChange", map[string]interface{}{
		"driver_id": driverID,
		"online":    online,
	})
}

// RecordLocationUpdate records driver location update
func (nr *NewRelicApp) RecordLocationUpdate() {
	nr.RecordCustomMetric("custom/driver/location_update", 1)
}

// RecordActiveConnections records the current websocket connection count
func (nr *NewRelicApp) RecordActiveConnections(count int) {
	nr.RecordCustomMetric("custom/ws/active_connections", float64(count))
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.enabled
}
