package model

import "time"

// Class is a Diablo II character class with its wire code.
type Class int

const (
	ClassAmazon Class = iota
	ClassSorceress
	ClassNecromancer
	ClassPaladin
	ClassBarbarian
	ClassDruid
	ClassAssassin
)

// ClassFromCode maps a wire class code onto a Class. ok is false for codes
// outside the known range.
func ClassFromCode(code uint32) (Class, bool) {
	if code > uint32(ClassAssassin) {
		return 0, false
	}
	return Class(code), true
}

func (c Class) String() string {
	switch c {
	case ClassAmazon:
		return "Amazon"
	case ClassSorceress:
		return "Sorceress"
	case ClassNecromancer:
		return "Necromancer"
	case ClassPaladin:
		return "Paladin"
	case ClassBarbarian:
		return "Barbarian"
	case ClassDruid:
		return "Druid"
	case ClassAssassin:
		return "Assassin"
	default:
		return "Unknown"
	}
}

// Character flag bits as they appear in the creation request and statstring.
const (
	CharFlagHardcore  = 0x04
	CharFlagDead      = 0x08
	CharFlagExpansion = 0x20
	CharFlagLadder    = 0x40
)

// Character is a realm character owned by an account.
type Character struct {
	AccountName  string
	Name         string
	Class        Class
	Level        int
	Expansion    bool
	Hardcore     bool
	Dead         bool
	Ladder       bool
	CreatedAt    time.Time
	LastPlayedAt time.Time
}

// Flags packs the boolean attributes into the wire flag word.
func (c *Character) Flags() uint16 {
	var f uint16
	if c.Hardcore {
		f |= CharFlagHardcore
	}
	if c.Dead {
		f |= CharFlagDead
	}
	if c.Expansion {
		f |= CharFlagExpansion
	}
	if c.Ladder {
		f |= CharFlagLadder
	}
	return f
}

// SetFlags unpacks the wire flag word into the boolean attributes.
func (c *Character) SetFlags(f uint16) {
	c.Hardcore = f&CharFlagHardcore != 0
	c.Dead = f&CharFlagDead != 0
	c.Expansion = f&CharFlagExpansion != 0
	c.Ladder = f&CharFlagLadder != 0
}

// Statstring builds the 33-byte character appearance block the client
// renders in the character list and in chat. Equipment and color slots are
// left at 0xFF (none), class codes are 1-indexed on the wire.
func (c *Character) Statstring() []byte {
	level := c.Level
	if level < 1 {
		level = 1
	} else if level > 99 {
		level = 99
	}

	flags := byte(0x80)
	if c.Hardcore {
		flags |= CharFlagHardcore
	}
	if c.Dead {
		flags |= CharFlagDead
	}
	if c.Expansion {
		flags |= CharFlagExpansion
	}
	if c.Ladder {
		flags |= CharFlagLadder
	}

	ladder := byte(0xFF)
	if c.Ladder {
		ladder = 0x01
	}

	out := make([]byte, 0, 33)
	out = append(out, 0x84, 0x80)
	for i := 0; i < 11; i++ { // equipment slots
		out = append(out, 0xFF)
	}
	out = append(out, byte(c.Class)+1)
	for i := 0; i < 11; i++ { // equipment colors
		out = append(out, 0xFF)
	}
	out = append(out,
		byte(level),
		flags,
		0x80, // act 1, active
		0xFF, 0xFF,
		ladder,
		0xFF, 0xFF,
	)
	return out
}
