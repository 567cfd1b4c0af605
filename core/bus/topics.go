package bus

// Topic layout follows the backend's routing-key convention: dot-separated
// segments with the device identity last.

const (
	// RegistrationTopic receives one-time device announcements.
	RegistrationTopic = "registration.new"

	controlPrefix = "control."
)

func LocationTopic(deviceID string) string { return "realtime.location." + deviceID }

func StatusTopic(deviceID string) string { return "realtime.status." + deviceID }

func BatteryTopic(deviceID string) string { return "realtime.battery." + deviceID }

func MaintenanceTopic(deviceID string) string { return "report.maintenance." + deviceID }

func PerformanceTopic(deviceID string) string { return "report.performance." + deviceID }

// ControlTopic builds the inbound topic for one command and device.
func ControlTopic(command, deviceID string) string {
	return controlPrefix + command + "." + deviceID
}

// DeadLetterTopic receives rejected control messages for a device.
func DeadLetterTopic(deviceID string) string {
	return "deadletter.control." + deviceID
}
