package webserver

// OpCode is the byte written into the wakeup pipe.
type OpCode byte

const (
	WAKE_ALARM OpCode = 'a'
	WAKE_DONE  OpCode = 'd'
	WAKE_STOP  OpCode = 's'
)
