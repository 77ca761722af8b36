package space

import "time"

// Lease is the handle returned by Write. It refers to the stored tuple by id;
// once the tuple is taken or expires, Renew and Cancel report false.
type Lease struct {
	space *Space
	tag   string
	id    uint64
}

// ID returns the id of the leased tuple.
func (l *Lease) ID() uint64 { return l.id }

// Tag returns the tag of the leased tuple.
func (l *Lease) Tag() string { return l.tag }

// Renew extends the tuple's life to now+d and emits a renewed event. Agent
// stamps are kept. It returns false if the tuple no longer exists or has already
// expired.
func (l *Lease) Renew(d time.Duration) bool {
	return l.space.renew(l.tag, l.id, d)
}

// Cancel takes the tuple by id, counting it as a take. It returns false if
// the tuple was already gone.
func (l *Lease) Cancel() bool {
	return l.space.cancel(l.tag, l.id, EventTaken)
}

// Registration is the handle returned by Notify.
type Registration struct {
	space *Space
	id    uint64
}

// ID returns the registration id.
func (r *Registration) ID() uint64 { return r.id }

// Renew extends the registration to now+d. It returns false if the registration
// is gone or d is not positive.
func (r *Registration) Renew(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	return r.space.listeners.renew(r.id, expiryFrom(nowMillis(r.space.clock), d))
}

// Cancel removes the registration. It returns false if it was already gone.
func (r *Registration) Cancel() bool {
	return r.space.listeners.cancel(r.id)
}
