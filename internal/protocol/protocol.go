// Package protocol encodes and decodes the newline-delimited text messages
// exchanged with Reversi clients. It knows the message grammar only; game
// rules live in package reversi.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/reversi-server/internal/reversi"
)

var (
	ErrProtocol    = errors.New("protocol error")
	ErrLineTooLong = errors.New("line too long")
)

// Wire keywords.
const (
	KeyOpponentName = "NOME_ADVERSARIO"
	KeyStart        = "COMEÇAR"
	KeyYourTurn     = "SUA_VEZ"
	KeyClock        = "TEMPO"
	KeyMove         = "JOGADA"
	KeyMoveOK       = "JOGADA_CONFIRMADA"
	KeyMoveInvalid  = "JOGADA_INVALIDA"
	KeyTimeUp       = "TEMPO_ESGOTADO"
	KeyChat         = "CHAT"
	KeyQuit         = "SAIR"
	KeyOpponentLeft = "SAIU"
	KeyGameOver     = "FIM"
)

// Kind tags a decoded line.
type Kind int

const (
	KindUnknown Kind = iota
	KindColor
	KindOpponentName
	KindStart
	KindYourTurn
	KindClock
	KindMove       // C->S: JOGADA r c
	KindMovePlayed // S->C: JOGADA r c k
	KindMoveOK
	KindMoveInvalid
	KindTimeUp
	KindChat
	KindQuit
	KindOpponentLeft
	KindGameOver
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindColor:        "color",
	KindOpponentName: "opponent_name",
	KindStart:        "start",
	KindYourTurn:     "your_turn",
	KindClock:        "clock",
	KindMove:         "move",
	KindMovePlayed:   "move_played",
	KindMoveOK:       "move_ok",
	KindMoveInvalid:  "move_invalid",
	KindTimeUp:       "time_up",
	KindChat:         "chat",
	KindQuit:         "quit",
	KindOpponentLeft: "opponent_left",
	KindGameOver:     "game_over",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Message is one decoded protocol line. Only the fields relevant to Kind are set.
type Message struct {
	Kind    Kind
	Row     int
	Col     int
	Color   reversi.Color
	Seconds int
	Text    string
}

// Decode parses one line (without its terminator). Chat text is kept verbatim.
func Decode(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Message{}, fmt.Errorf("%w: empty line", ErrProtocol)
	}

	// chat payload must survive untouched, including inner spacing
	if line == KeyChat || strings.HasPrefix(line, KeyChat+" ") {
		return Message{Kind: KindChat, Text: strings.TrimPrefix(strings.TrimPrefix(line, KeyChat), " ")}, nil
	}
	if strings.HasPrefix(line, KeyOpponentName+" ") {
		return Message{Kind: KindOpponentName, Text: strings.TrimPrefix(line, KeyOpponentName+" ")}, nil
	}

	parts := strings.Fields(line)
	key, args := parts[0], parts[1:]
	switch key {
	case "B", "W":
		if len(args) != 0 {
			return Message{}, arity(key, 0, len(args))
		}
		c, _ := reversi.ParseColor(key)
		return Message{Kind: KindColor, Color: c}, nil
	case KeyStart:
		return bare(KindStart, key, args)
	case KeyYourTurn:
		return bare(KindYourTurn, key, args)
	case KeyMoveOK:
		return bare(KindMoveOK, key, args)
	case KeyMoveInvalid:
		return bare(KindMoveInvalid, key, args)
	case KeyTimeUp:
		return bare(KindTimeUp, key, args)
	case KeyQuit:
		// clients may append a reason; only the keyword matters
		return Message{Kind: KindQuit}, nil
	case KeyOpponentLeft:
		return bare(KindOpponentLeft, key, args)
	case KeyGameOver:
		return bare(KindGameOver, key, args)
	case KeyOpponentName:
		return Message{Kind: KindOpponentName}, nil
	case KeyClock:
		if len(args) != 1 {
			return Message{}, arity(key, 1, len(args))
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return Message{}, fmt.Errorf("%w: bad seconds %q", ErrProtocol, args[0])
		}
		return Message{Kind: KindClock, Seconds: n}, nil
	case KeyMove:
		return decodeMove(args)
	default:
		return Message{}, fmt.Errorf("%w: unknown keyword %q", ErrProtocol, key)
	}
}

func decodeMove(args []string) (Message, error) {
	if len(args) != 2 && len(args) != 3 {
		return Message{}, fmt.Errorf("%w: %s wants 2 or 3 arguments, got %d", ErrProtocol, KeyMove, len(args))
	}
	row, err := parseCoord(args[0])
	if err != nil {
		return Message{}, err
	}
	col, err := parseCoord(args[1])
	if err != nil {
		return Message{}, err
	}
	if len(args) == 2 {
		return Message{Kind: KindMove, Row: row, Col: col}, nil
	}
	c, err := reversi.ParseColor(args[2])
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return Message{Kind: KindMovePlayed, Row: row, Col: col, Color: c}, nil
}

// parseCoord accepts plain ASCII decimal only. Range is checked by the board.
func parseCoord(s string) (int, error) {
	if s == "" || len(s) > 3 {
		return 0, fmt.Errorf("%w: bad coordinate %q", ErrProtocol, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: bad coordinate %q", ErrProtocol, s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad coordinate %q", ErrProtocol, s)
	}
	return n, nil
}

func bare(k Kind, key string, args []string) (Message, error) {
	if len(args) != 0 {
		return Message{}, arity(key, 0, len(args))
	}
	return Message{Kind: k}, nil
}

func arity(key string, want, got int) error {
	return fmt.Errorf("%w: %s wants %d arguments, got %d", ErrProtocol, key, want, got)
}

// Encode renders m as a single line without the trailing newline.
func Encode(m Message) string {
	switch m.Kind {
	case KindColor:
		return string(m.Color.Char())
	case KindOpponentName:
		return KeyOpponentName + " " + m.Text
	case KindStart:
		return KeyStart
	case KindYourTurn:
		return KeyYourTurn
	case KindClock:
		return KeyClock + " " + strconv.Itoa(m.Seconds)
	case KindMove:
		return fmt.Sprintf("%s %d %d", KeyMove, m.Row, m.Col)
	case KindMovePlayed:
		return fmt.Sprintf("%s %d %d %c", KeyMove, m.Row, m.Col, m.Color.Char())
	case KindMoveOK:
		return KeyMoveOK
	case KindMoveInvalid:
		return KeyMoveInvalid
	case KindTimeUp:
		return KeyTimeUp
	case KindChat:
		return KeyChat + " " + m.Text
	case KindQuit:
		return KeyQuit
	case KindOpponentLeft:
		return KeyOpponentLeft
	case KindGameOver:
		return KeyGameOver
	default:
		return ""
	}
}

// Server -> client constructors.

func ColorAssigned(c reversi.Color) Message { return Message{Kind: KindColor, Color: c} }
func OpponentName(name string) Message     { return Message{Kind: KindOpponentName, Text: name} }
func Start() Message                       { return Message{Kind: KindStart} }
func YourTurn() Message                    { return Message{Kind: KindYourTurn} }
func Clock(seconds int) Message            { return Message{Kind: KindClock, Seconds: seconds} }
func MoveConfirmed() Message               { return Message{Kind: KindMoveOK} }
func MoveInvalid() Message                 { return Message{Kind: KindMoveInvalid} }
func Chat(text string) Message             { return Message{Kind: KindChat, Text: text} }
func OpponentLeft() Message                { return Message{Kind: KindOpponentLeft} }
func GameOver() Message                    { return Message{Kind: KindGameOver} }

func MovePlayed(row, col int, c reversi.Color) Message {
	return Message{Kind: KindMovePlayed, Row: row, Col: col, Color: c}
}

// Client -> server constructors, used by cmd/reversi-check and tests.

func Move(row, col int) Message { return Message{Kind: KindMove, Row: row, Col: col} }
func TimeUp() Message           { return Message{Kind: KindTimeUp} }
func Quit() Message             { return Message{Kind: KindQuit} }
