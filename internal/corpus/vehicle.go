package corpus

import (
	"strings"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/textutil"
)

type vehicleRule struct {
	vehicle string
	words   []string
}

// serviceVehicles infers a vehicle class from a price list service name.
// First match wins.
var serviceVehicles = []vehicleRule{
	{VehicleAM, []string{"am", "moped", "moppe"}},
	{VehicleTrailer, []string{"b96", "be", "släp"}},
	{VehicleCar, []string{"bil", "personbil"}},
	{VehicleMC, []string{"mc", "a1", "a2", "motorcykel", "motorcyklar"}},
	{VehicleTruck, []string{"lastbil", "c1", "c", "ce", "ykb"}},
	{VehicleIntro, []string{"introduktion", "handledarkurs", "handledare", "handledarutbildning"}},
}

var mcFallbackFragments = []string{"mc", "motorcykel", "a1", "a2", "a-körkort"}

// InferVehicle returns the vehicle class of a service name, or "".
func InferVehicle(serviceName string) string {
	lower := textutil.Fold(serviceName)
	for _, rule := range serviceVehicles {
		if textutil.ContainsAnyWord(lower, rule.words...) {
			return rule.vehicle
		}
	}
	if textutil.ContainsAny(lower, mcFallbackFragments...) {
		return VehicleMC
	}
	return ""
}

// ServiceKey turns a service name into the id fragment used for price chunks.
func ServiceKey(serviceName string) string {
	return strings.Join(strings.Fields(serviceName), "_")
}
