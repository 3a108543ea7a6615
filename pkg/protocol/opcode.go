// protocol/opcode.go
package protocol

import "fmt"

// Opcode identifies the semantic category of a frame.
type Opcode int

// Opcodes used by the session core. Values are fixed by the server.
const (
	OpPing                     Opcode = 1
	OpDebug                    Opcode = 2
	OpReconnect                Opcode = 3
	OpLog                      Opcode = 5
	OpSessionInit              Opcode = 6
	OpProfile                  Opcode = 16
	OpAuthRequest              Opcode = 17
	OpAuth                     Opcode = 18
	OpLogin                    Opcode = 19
	OpLogout                   Opcode = 20
	OpSync                     Opcode = 21
	OpNotifMessage             Opcode = 128
	OpNotifTyping              Opcode = 129
	OpNotifMark                Opcode = 130
	OpNotifContact             Opcode = 131
	OpNotifPresence            Opcode = 132
	OpNotifChat                Opcode = 135
	OpNotifAttach              Opcode = 136
	OpNotifMsgReactionsChanged Opcode = 155
)

var opcodeNames = map[Opcode]string{
	OpPing:                     "PING",
	OpDebug:                    "DEBUG",
	OpReconnect:                "RECONNECT",
	OpLog:                      "LOG",
	OpSessionInit:              "SESSION_INIT",
	OpProfile:                  "PROFILE",
	OpAuthRequest:              "AUTH_REQUEST",
	OpAuth:                     "AUTH",
	OpLogin:                    "LOGIN",
	OpLogout:                   "LOGOUT",
	OpSync:                     "SYNC",
	OpNotifMessage:             "NOTIF_MESSAGE",
	OpNotifTyping:              "NOTIF_TYPING",
	OpNotifMark:                "NOTIF_MARK",
	OpNotifContact:             "NOTIF_CONTACT",
	OpNotifPresence:            "NOTIF_PRESENCE",
	OpNotifChat:                "NOTIF_CHAT",
	OpNotifAttach:              "NOTIF_ATTACH",
	OpNotifMsgReactionsChanged: "NOTIF_MSG_REACTIONS_CHANGED",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE_%d", int(o))
}
