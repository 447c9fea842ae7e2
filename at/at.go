package at

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	// CtrlZ ends an SMS body or an HTTP upload window.
	CtrlZ = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	Download   = "DOWNLOAD"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// Data responses
	RespSignalQuality = "+CSQ:"
	RespReadMessage   = "+CMGR:"
	RespSendMessage   = "+CMGS:"
	RespGNSSInfo      = "+CGNSINF:"
	RespHTTPAction    = "+HTTPACTION:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg        = "+CMTI:"
	UrcMessageReport = "+CDSI:"
	UrcCall          = "RING"
	UrcPowerDown     = "NORMAL POWER DOWN"
)

// SIM868 command set.
const (
	CmdAt             = "AT"
	CmdSignalQuality  = "AT+CSQ"
	CmdSetTextMode    = "AT+CMGF=1"
	CmdCharsetGSM     = `AT+CSCS="GSM"`
	CmdSendMessage    = `AT+CMGS="%s"`
	CmdReadMessage    = "AT+CMGR=%d"
	CmdGNSSPowerOn    = "AT+CGNSPWR=1"
	CmdGNSSPowerOff   = "AT+CGNSPWR=0"
	CmdGNSSInfo       = "AT+CGNSINF"
	CmdBearerParam    = `AT+SAPBR=3,1,"%s","%s"`
	CmdBearerQuery    = "AT+SAPBR=2,1"
	CmdBearerOpen     = "AT+SAPBR=1,1"
	CmdHTTPInit       = "AT+HTTPINIT"
	CmdHTTPSSL        = "AT+HTTPSSL=1"
	CmdHTTPContextID  = `AT+HTTPPARA="CID",1`
	CmdHTTPURL        = `AT+HTTPPARA="URL","%s"`
	CmdHTTPContent    = `AT+HTTPPARA="CONTENT","%s"`
	CmdHTTPData       = "AT+HTTPDATA=%d,%d"
	CmdHTTPAction     = "AT+HTTPACTION=%d"
	CmdHTTPRead       = "AT+HTTPREAD"
	CmdHTTPTerminate  = "AT+HTTPTERM"
	HTTPActionGet     = 0
	HTTPActionPost    = 1
	BearerContentType = "CONTYPE"
	BearerAPN         = "APN"
	BearerUser        = "USER"
	BearerPassword    = "PWD"
	BearerGPRS        = "GPRS"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypePrompt:
		return "prompt"
	}
	return "unknown"
}
