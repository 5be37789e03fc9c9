package custody

// System constants shared by every deployment of the custody system. They are
// folded into the signing domain, so changing either invalidates all
// previously issued approvals.
const (
	// SystemName identifies the custody protocol inside signed material.
	SystemName = "lerian.custody"
	// SystemVersion is the protocol revision inside signed material.
	SystemVersion = "1"
)
