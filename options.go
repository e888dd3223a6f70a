package rssl

// InitOptions configures Session initialization.
type InitOptions struct {
	Locking LockingType `yaml:"locking"`
	NetLog  bool        `yaml:"netlog"`
}

// SegmentedNetwork gives separate send and receive endpoints.
type SegmentedNetwork struct {
	RecvAddress     string `yaml:"recvaddress"`
	RecvServiceName string `yaml:"recvservice"`
	SendAddress     string `yaml:"sendaddress"`
	SendServiceName string `yaml:"sendservice"`
	InterfaceName   string `yaml:"interface"`
}

// SeqMcastOptions holds sequenced multicast tunables.
type SeqMcastOptions struct {
	MaxMsgSize int    `yaml:"maxmsgsize"`
	InstanceID uint16 `yaml:"instanceid"`
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	ConnectionType          ConnectionType   `yaml:"conntype"`
	Address                 string           `yaml:"address"`
	ServiceName             string           `yaml:"service"`
	InterfaceName           string           `yaml:"interface"`
	Segmented               SegmentedNetwork `yaml:"segmented"`
	Blocking                bool             `yaml:"blocking"`
	ProtocolType            uint8            `yaml:"protocoltype"`
	MajorVersion            uint8            `yaml:"majorversion"`
	MinorVersion            uint8            `yaml:"minorversion"`
	PingTimeout             int              `yaml:"pingtimeout"`
	GuaranteedOutputBuffers int              `yaml:"guaranteedbuffers"`
	NumInputBuffers         int              `yaml:"inputbuffers"`
	SysSendBufSize          int              `yaml:"syssendbufsize"`
	SysRecvBufSize          int              `yaml:"sysrecvbufsize"`
	SeqMcast                SeqMcastOptions  `yaml:"seqmcast"`
	ComponentVersion        string           `yaml:"componentversion"`
	UserSpec                interface{}      `yaml:"-"`
}

// recvEndpoint returns the address and service to receive on.
func (o *ConnectOptions) recvEndpoint() (addr, service string) {
	addr, service = o.Segmented.RecvAddress, o.Segmented.RecvServiceName
	if addr == "" {
		addr = o.Address
	}
	if service == "" {
		service = o.ServiceName
	}
	return
}

// sendEndpoint returns the address and service to send to,
// falling back to the receive endpoint.
func (o *ConnectOptions) sendEndpoint() (addr, service string) {
	addr, service = o.Segmented.SendAddress, o.Segmented.SendServiceName
	raddr, rservice := o.recvEndpoint()
	if addr == "" {
		addr = raddr
	}
	if service == "" {
		service = rservice
	}
	return
}

func (o *ConnectOptions) interfaceName() string {
	if o.Segmented.InterfaceName != "" {
		return o.Segmented.InterfaceName
	}
	return o.InterfaceName
}

// BindOptions configures Bind.
type BindOptions struct {
	ConnectionType          ConnectionType `yaml:"conntype"`
	ServiceName             string         `yaml:"service"`
	InterfaceName           string         `yaml:"interface"`
	MaxFragmentSize         int            `yaml:"maxfragmentsize"`
	MaxOutputBuffers        int            `yaml:"maxoutputbuffers"`
	GuaranteedOutputBuffers int            `yaml:"guaranteedbuffers"`
	ProtocolType            uint8          `yaml:"protocoltype"`
	MajorVersion            uint8          `yaml:"majorversion"`
	MinorVersion            uint8          `yaml:"minorversion"`
	PingTimeout             int            `yaml:"pingtimeout"`
	ServerBlocking          bool           `yaml:"serverblocking"`
	ChannelsBlocking        bool           `yaml:"channelsblocking"`
	SysSendBufSize          int            `yaml:"syssendbufsize"`
	SysRecvBufSize          int            `yaml:"sysrecvbufsize"`
	ShmemSlots              int            `yaml:"shmemslots"`
	ComponentVersion        string         `yaml:"componentversion"`
	UserSpec                interface{}    `yaml:"-"`
}

// AcceptOptions configures Accept.
type AcceptOptions struct {
	// NakMount rejects the connection during InitChannel.
	NakMount bool
	UserSpec interface{}
}

// TraceOptions configures the IoctlTrace ioctl.
type TraceOptions struct {
	Flags       TraceFlag `yaml:"flags"`
	FileName    string    `yaml:"filename"`
	MaxFileSize int64     `yaml:"maxfilesize"`
}
