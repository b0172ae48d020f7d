// Package metadata holds the uuids of the EMR metadata the reports look up.
package metadata

// Patient identifier types.
const (
	UniquePatientNumber = "05ee9cf4-7242-4a17-b4d4-00f707265c8a"
	TBDistrictRegNumber = "d8ee3b8c-a8fc-4d6b-af6a-9423be5f8906"
)

// Person attribute types.
const (
	TelephoneContact = "b2c38640-2603-4629-aebd-3b54f33f1e3a"
)

// Concepts, addressed by their CIEL uuids.
const (
	CurrentWHOStage      = "5356AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	IPTStart             = "1265AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	TBTreatmentStartDate = "1113AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)
