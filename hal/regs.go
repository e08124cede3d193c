package hal

import "fmt"

// Register is the byte offset of a controller register from the USB
// controller base (0x50110000 on the RP2040).
type Register uint16

// Controller register offsets.
const (
	AddrEndp            Register = 0x00 // device address and endpoint control
	AddrEndp1           Register = 0x04 // interrupt endpoint 1 address (host); 2..15 follow at 4-byte stride
	MainCtrl            Register = 0x40
	SOFWr               Register = 0x44
	SOFRd               Register = 0x48
	SIECtrl             Register = 0x4C
	SIEStatus           Register = 0x50
	IntEPCtrl           Register = 0x54
	BuffStatus          Register = 0x58
	BuffCPUShouldHandle Register = 0x5C
	EPAbort             Register = 0x60
	EPAbortDone         Register = 0x64
	EPStallArm          Register = 0x68
	NAKPoll             Register = 0x6C
	EPStatusStallNAK    Register = 0x70
	USBMuxing           Register = 0x74
	USBPwr              Register = 0x78
	Intr                Register = 0x8C
	Inte                Register = 0x90
	Intf                Register = 0x94
	Ints                Register = 0x98

	// RegisterSpan is one past the last register offset.
	RegisterSpan Register = 0x9C
)

// Alias offsets added to a register address for atomic access.
const (
	AliasXOR = 0x1000
	AliasSet = 0x2000
	AliasClr = 0x3000
)

var registerNames = map[Register]string{
	AddrEndp:            "ADDR_ENDP",
	MainCtrl:            "MAIN_CTRL",
	SOFWr:               "SOF_WR",
	SOFRd:               "SOF_RD",
	SIECtrl:             "SIE_CTRL",
	SIEStatus:           "SIE_STATUS",
	IntEPCtrl:           "INT_EP_CTRL",
	BuffStatus:          "BUFF_STATUS",
	BuffCPUShouldHandle: "BUFF_CPU_SHOULD_HANDLE",
	EPAbort:             "EP_ABORT",
	EPAbortDone:         "EP_ABORT_DONE",
	EPStallArm:          "EP_STALL_ARM",
	NAKPoll:             "NAK_POLL",
	EPStatusStallNAK:    "EP_STATUS_STALL_NAK",
	USBMuxing:           "USB_MUXING",
	USBPwr:              "USB_PWR",
	Intr:                "INTR",
	Inte:                "INTE",
	Intf:                "INTF",
	Ints:                "INTS",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	if r >= AddrEndp1 && r < MainCtrl && r%4 == 0 {
		return fmt.Sprintf("ADDR_ENDP%d", r/4)
	}
	return fmt.Sprintf("REG[0x%02x]", uint16(r))
}

// AddrEndpN returns the address register of host interrupt endpoint slot
// n (1-15).
func AddrEndpN(n int) Register {
	return AddrEndp + Register(4*n)
}

// ADDR_ENDP fields.
const (
	AddrEndpAddressMask   = 0x7F
	AddrEndpEndpointLSB   = 16
	AddrEndpEndpointMask  = 0xF << AddrEndpEndpointLSB
	AddrEndpIntEPDir      = 1 << 25 // host interrupt endpoint: 1 = OUT
	AddrEndpIntEPPreamble = 1 << 26
)

// AddrEndpValue composes an ADDR_ENDP word.
func AddrEndpValue(address, endpoint uint8) uint32 {
	return uint32(address)&AddrEndpAddressMask |
		uint32(endpoint&0xF)<<AddrEndpEndpointLSB
}

// MAIN_CTRL bits.
const (
	MainCtrlControllerEn = 1 << 0
	MainCtrlHostNDevice  = 1 << 1
	MainCtrlSimTiming    = 1 << 31
)

// SIE_CTRL bits.
const (
	SIECtrlStartTrans    = 1 << 0
	SIECtrlSendSetup     = 1 << 1
	SIECtrlSendData      = 1 << 2
	SIECtrlReceiveData   = 1 << 3
	SIECtrlStopTrans     = 1 << 4
	SIECtrlPreambleEn    = 1 << 6
	SIECtrlSOFSync       = 1 << 8
	SIECtrlSOFEn         = 1 << 9
	SIECtrlKeepAliveEn   = 1 << 10
	SIECtrlVBUSEn        = 1 << 11
	SIECtrlResume        = 1 << 12
	SIECtrlResetBus      = 1 << 13
	SIECtrlPulldownEn    = 1 << 15
	SIECtrlPullupEn      = 1 << 16
	SIECtrlTransceiverPD = 1 << 18
	SIECtrlEP0IntNAK     = 1 << 27
	SIECtrlEP0Int2Buf    = 1 << 28
	SIECtrlEP0Int1Buf    = 1 << 29
	SIECtrlEP0DoubleBuf  = 1 << 30
	SIECtrlEP0IntStall   = 1 << 31
)

// SIECtrlHostBase is the SIE_CTRL value every host transaction starts from.
const SIECtrlHostBase = SIECtrlVBUSEn | SIECtrlSOFEn | SIECtrlKeepAliveEn |
	SIECtrlPulldownEn | SIECtrlEP0Int1Buf

// SIE_STATUS bits. Most are write-1-to-clear.
const (
	SIEStatusVBUSDetected  = 1 << 0
	SIEStatusLineStateLSB  = 2
	SIEStatusLineState     = 3 << SIEStatusLineStateLSB
	SIEStatusSuspended     = 1 << 4
	SIEStatusSpeedLSB      = 8
	SIEStatusSpeed         = 3 << SIEStatusSpeedLSB
	SIEStatusResume        = 1 << 11
	SIEStatusConnected     = 1 << 16
	SIEStatusSetupRec      = 1 << 17
	SIEStatusTransComplete = 1 << 18
	SIEStatusBusReset      = 1 << 19
	SIEStatusCRCError      = 1 << 24
	SIEStatusBitStuffError = 1 << 25
	SIEStatusRxOverflow    = 1 << 26
	SIEStatusRxTimeout     = 1 << 27
	SIEStatusNAKRec        = 1 << 28
	SIEStatusStallRec      = 1 << 29
	SIEStatusACKRec        = 1 << 30
	SIEStatusDataSeqError  = 1 << 31
)

// INTR, INTE, INTF and INTS bits.
const (
	IntHostConnDis       = 1 << 0
	IntHostResume        = 1 << 1
	IntHostSOF           = 1 << 2
	IntTransComplete     = 1 << 3
	IntBuffStatus        = 1 << 4
	IntErrorDataSeq      = 1 << 5
	IntErrorRxTimeout    = 1 << 6
	IntErrorRxOverflow   = 1 << 7
	IntErrorBitStuff     = 1 << 8
	IntErrorCRC          = 1 << 9
	IntStall             = 1 << 10
	IntVBUSDetect        = 1 << 11
	IntBusReset          = 1 << 12
	IntDevConnDis        = 1 << 13
	IntDevSuspend        = 1 << 14
	IntDevResumeFromHost = 1 << 15
	IntSetupReq          = 1 << 16
	IntDevSOF            = 1 << 17
	IntAbortDone         = 1 << 18
	IntEPStallNAK        = 1 << 19
)

// USB_MUXING bits.
const (
	USBMuxingToPHY   = 1 << 0
	USBMuxingSoftCon = 1 << 3
)

// USB_PWR bits.
const (
	USBPwrVBUSDetect           = 1 << 2
	USBPwrVBUSDetectOverrideEn = 1 << 3
)

// EP_STALL_ARM bits.
const (
	EPStallArmEP0In  = 1 << 0
	EPStallArmEP0Out = 1 << 1
)

// Speed is the bus speed reported in SIE_STATUS.SPEED (host mode).
type Speed uint8

// Bus speeds.
const (
	SpeedDisconnected Speed = 0
	SpeedLow          Speed = 1
	SpeedFull         Speed = 2
)

// SpeedOf extracts the speed field of a SIE_STATUS value.
func SpeedOf(sieStatus uint32) Speed {
	return Speed((sieStatus & SIEStatusSpeed) >> SIEStatusSpeedLSB)
}

func (s Speed) String() string {
	switch s {
	case SpeedDisconnected:
		return "disconnected"
	case SpeedLow:
		return "low"
	case SpeedFull:
		return "full"
	}
	return fmt.Sprintf("speed(%d)", uint8(s))
}
