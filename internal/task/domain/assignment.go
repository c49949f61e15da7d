package domain

// DeviceTask records that a task has been assigned to a device. Done only ever
// moves from false to true.
type DeviceTask struct {
	ID       string
	TaskID   int64
	DeviceID string
	Assigned bool
	Done     bool
}
