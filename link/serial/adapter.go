package serial

// Adapter exposes a Port as a datalink.LowerLayer: Send writes a whole
// frame through the port, and SendAvailable reports a fixed budget
// standing in for the OS/driver's own output buffering (a real serial
// driver has no API to ask the kernel tty layer how much room is left,
// so a conservative constant is used instead).
type Adapter struct {
	port   Port
	budget int
}

// DefaultSendBudget is the assumed output buffer size backing
// SendAvailable, sized well above the comm core's 268-byte max frame.
const DefaultSendBudget = 4096

// NewAdapter wraps port with the default send budget.
func NewAdapter(port Port) *Adapter {
	return &Adapter{port: port, budget: DefaultSendBudget}
}

// Send writes frame in full.
func (a *Adapter) Send(frame []byte) error {
	_, err := a.port.Write(frame)
	return err
}

// SendAvailable reports the adapter's fixed budget, not an actual live
// kernel buffer occupancy.
func (a *Adapter) SendAvailable() int { return a.budget }
