package cot

// DefaultInstruments is the tracked contract roster. Keywords match with
// OR semantics against the upper-cased market name, so a single keyword
// like "GOLD" picks out "GOLD - COMMODITY EXCHANGE INC." without needing
// the exchange suffix.
var DefaultInstruments = []Instrument{
	{ID: "GOLD", Keywords: []string{"GOLD"}},
	{ID: "EURO", Keywords: []string{"EURO FX"}},
	{ID: "GBP", Keywords: []string{"BRITISH POUND"}},
}
