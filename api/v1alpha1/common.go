package v1alpha1

// StringToSizePreset maps an empty or unknown size onto auto.
func StringToSizePreset(s string) SizePreset {
	switch SizePreset(s) {
	case SizeNeighborhood, SizeSmall, SizeCity, SizeMetro, SizeRegion:
		return SizePreset(s)
	default:
		return SizeAuto
	}
}

// PresetDistance is the fetch radius in meters of each size preset.
var PresetDistance = map[SizePreset]int{
	SizeNeighborhood: 2000,
	SizeSmall:        4000,
	SizeCity:         8000,
	SizeMetro:        15000,
	SizeRegion:       25000,
	SizeAuto:         8000,
}

func StringToJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobStatusProcessing:
		return JobStatusProcessing
	case JobStatusCompleted:
		return JobStatusCompleted
	case JobStatusFailed:
		return JobStatusFailed
	default:
		return JobStatusPending
	}
}
