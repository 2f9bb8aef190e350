package common

// Journal is implemented by state backends that can roll back every write made
// after a snapshot was taken. Snapshots nest.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Atomic runs fn inside a snapshot of j. When fn fails every state change it
// made, including changes made by nested engines, is reverted.
func Atomic(j Journal, fn func() error) (err error) {
	snap := j.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			j.RevertToSnapshot(snap)
			panic(r)
		}
		if err != nil {
			j.RevertToSnapshot(snap)
		}
	}()
	return fn()
}
