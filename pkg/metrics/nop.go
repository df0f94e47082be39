package metrics

// Nop discards every measurement. Offline stages and tests use it.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) RecordTick(string)                   {}
func (Nop) RecordCandle(string, bool)           {}
func (Nop) RecordLateTick(string)               {}
func (Nop) RecordGuardDenial(string)            {}
func (Nop) RecordTrade(string, string, float64) {}
func (Nop) RecordEquity(float64)                {}
func (Nop) RecordMessageSent(string, string)    {}
func (Nop) RecordError(string)                  {}
func (Nop) RecordLatency(string, float64)       {}
