// Package lifecycle owns the service request state machine and the lookup
// tables that normalise loosely typed enum input.
package lifecycle

import (
	"strings"

	"roadassist/internal/models"
)

// Trigger identifies who may drive a transition.
type Trigger string

const (
	TriggerEndUser          Trigger = "end_user"
	TriggerMechanic         Trigger = "mechanic"
	TriggerAssignedMechanic Trigger = "assigned_mechanic"
)

type edge struct {
	from, to string
}

// transitions is the single canonical table. Each edge lists the actors allowed to drive it.
var transitions = map[edge][]Trigger{
	{models.StatusPending, models.StatusAccepted}:     {TriggerMechanic},
	{models.StatusPending, models.StatusCancelled}:    {TriggerEndUser},
	{models.StatusPending, models.StatusRejected}:     {TriggerMechanic},
	{models.StatusAccepted, models.StatusRejected}:    {TriggerAssignedMechanic},
	{models.StatusAccepted, models.StatusInProgress}:  {TriggerAssignedMechanic},
	{models.StatusAccepted, models.StatusCancelled}:   {TriggerEndUser},
	{models.StatusInProgress, models.StatusCompleted}: {TriggerAssignedMechanic},
	{models.StatusInProgress, models.StatusCancelled}: {TriggerAssignedMechanic},
}

var terminal = map[string]bool{
	models.StatusCompleted: true,
	models.StatusCancelled: true,
	models.StatusRejected:  true,
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return terminal[status]
}

// CanTransition reports whether the table has an edge from -> to.
func CanTransition(from, to string) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// Allows reports whether trigger may drive from -> to.
func Allows(from, to string, trigger Trigger) bool {
	for _, t := range transitions[edge{from, to}] {
		if t == trigger {
			return true
		}
	}
	return false
}

// AllowedTargets lists reachable statuses from status in a stable order.
func AllowedTargets(from string) []string {
	var out []string
	for _, s := range Statuses {
		if CanTransition(from, s) {
			out = append(out, s)
		}
	}
	return out
}

// TimestampFor names the timestamp column stamped when a request enters status.
func TimestampFor(status string) string {
	switch status {
	case models.StatusAccepted:
		return "accepted_at"
	case models.StatusInProgress:
		return "started_at"
	case models.StatusCompleted:
		return "completed_at"
	case models.StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

// Statuses lists every request status in lifecycle order.
var Statuses = []string{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusInProgress,
	models.StatusCompleted,
	models.StatusCancelled,
	models.StatusRejected,
}

var ServiceTypes = []string{
	models.ServiceTowing,
	models.ServiceFlatTire,
	models.ServiceBatteryJumpStart,
	models.ServiceFuelDelivery,
	models.ServiceLockout,
	models.ServiceEngineTrouble,
	models.ServiceAccidentAssistance,
	models.ServiceOther,
}

var VehicleTypes = []string{
	models.VehicleCar,
	models.VehicleMotorcycle,
	models.VehicleSUV,
	models.VehicleTruck,
	models.VehicleVan,
	models.VehicleBus,
	models.VehicleOther,
}

var serviceTypeAliases = map[string]string{
	"TOW":             models.ServiceTowing,
	"FLAT_TYRE":       models.ServiceFlatTire,
	"PUNCTURE":        models.ServiceFlatTire,
	"TIRE":            models.ServiceFlatTire,
	"BATTERY":         models.ServiceBatteryJumpStart,
	"JUMP_START":      models.ServiceBatteryJumpStart,
	"FUEL":            models.ServiceFuelDelivery,
	"LOCKED_OUT":      models.ServiceLockout,
	"LOCK_OUT":        models.ServiceLockout,
	"ENGINE":          models.ServiceEngineTrouble,
	"ACCIDENT":        models.ServiceAccidentAssistance,
	"BREAKDOWN":       models.ServiceEngineTrouble,
	"ENGINE_FAILURE":  models.ServiceEngineTrouble,
	"ENGINE_PROBLEM":  models.ServiceEngineTrouble,
	"BATTERY_JUMP":    models.ServiceBatteryJumpStart,
	"FUEL_DELIVERIES": models.ServiceFuelDelivery,
}

var vehicleTypeAliases = map[string]string{
	"BIKE":      models.VehicleMotorcycle,
	"MOTORBIKE": models.VehicleMotorcycle,
	"SCOOTER":   models.VehicleMotorcycle,
	"AUTO":      models.VehicleCar,
	"SEDAN":     models.VehicleCar,
	"HATCHBACK": models.VehicleCar,
	"LORRY":     models.VehicleTruck,
	"MINIVAN":   models.VehicleVan,
}

var statusAliases = map[string]string{
	"CANCELED":   models.StatusCancelled,
	"INPROGRESS": models.StatusInProgress,
	"STARTED":    models.StatusInProgress,
	"DONE":       models.StatusCompleted,
	"OPEN":       models.StatusPending,
	"ASSIGNED":   models.StatusAccepted,
}

// Normalize upper-cases s and turns spaces and hyphens into underscores.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

func lookup(raw string, canonical []string, aliases map[string]string) (string, bool) {
	n := Normalize(raw)
	if n == "" {
		return "", false
	}
	for _, c := range canonical {
		if c == n {
			return c, true
		}
	}
	if c, ok := aliases[n]; ok {
		return c, true
	}
	return "", false
}

// ParseServiceType maps free-form input onto a canonical service type.
func ParseServiceType(raw string) (string, bool) {
	return lookup(raw, ServiceTypes, serviceTypeAliases)
}

// ParseVehicleType maps free-form input onto a canonical vehicle type.
// Empty input yields CAR.
func ParseVehicleType(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return models.VehicleCar, true
	}
	return lookup(raw, VehicleTypes, vehicleTypeAliases)
}

// ParseStatus maps free-form input onto a canonical status.
func ParseStatus(raw string) (string, bool) {
	return lookup(raw, Statuses, statusAliases)
}
