package phy

// Message command names, the direct Go analogue of the GNU Radio
// pmt::cons(cmd, dict) pairs the original implementation exchanged with
// the MAC (§6).
const (
	CmdTxMsdu          = "MAC-TXMSDU"
	CmdRxSOF           = "PHY-RXSOF"
	CmdRxSACK          = "PHY-RXSACK"
	CmdRxSound         = "PHY-RXSOUND"
	CmdRxSNR           = "PHY-RXSNR"
	CmdRxEnd           = "PHY-RXEND"
	CmdCalcToneMapReq  = "PHY-CALCTONEMAP.request"
	CmdCalcToneMapResp = "PHY-CALCTONEMAP.response"
)

// Message is a tagged (command, dict) pair exchanged between the MAC and
// the PHY core.
type Message struct {
	Command string
	Fields  map[string]any
}

// NewTxMsdu builds a MAC-TXMSDU message: mpduFC is mandatory,
// mpduPayload may be nil (control frames with no payload, e.g. SACK).
func NewTxMsdu(mpduFC, mpduPayload []byte) Message {
	return Message{Command: CmdTxMsdu, Fields: map[string]any{
		"mpdu_fc":      mpduFC,
		"mpdu_payload": mpduPayload,
	}}
}

// NewRxSOF builds a PHY-RXSOF message.
func NewRxSOF(payload []byte) Message {
	return Message{Command: CmdRxSOF, Fields: map[string]any{"payload": payload}}
}

// NewRxSACK builds a PHY-RXSACK message.
func NewRxSACK(sackd []byte) Message {
	return Message{Command: CmdRxSACK, Fields: map[string]any{"sackd": sackd}}
}

// NewRxSound builds a PHY-RXSOUND message (no fields).
func NewRxSound() Message {
	return Message{Command: CmdRxSound, Fields: map[string]any{}}
}

// NewRxSNR builds a PHY-RXSNR message.
func NewRxSNR(snr []float64) Message {
	return Message{Command: CmdRxSNR, Fields: map[string]any{"snr": snr}}
}

// NewRxEnd builds a PHY-RXEND message (no fields).
func NewRxEnd() Message {
	return Message{Command: CmdRxEnd, Fields: map[string]any{}}
}

// NewCalcToneMapRequest builds a PHY-CALCTONEMAP.request message; pt is
// the target symbol-error rate.
func NewCalcToneMapRequest(pt float64) Message {
	return Message{Command: CmdCalcToneMapReq, Fields: map[string]any{"target_pt": pt}}
}

// NewCalcToneMapResponse builds a PHY-CALCTONEMAP.response message.
func NewCalcToneMapResponse(toneMap []byte) Message {
	return Message{Command: CmdCalcToneMapResp, Fields: map[string]any{"tone_map": toneMap}}
}

// Bytes reads a []byte field, returning nil if absent or the wrong type.
func (m Message) Bytes(key string) []byte {
	v, _ := m.Fields[key].([]byte)
	return v
}

// Float64Slice reads a []float64 field, returning nil if absent or the
// wrong type.
func (m Message) Float64Slice(key string) []float64 {
	v, _ := m.Fields[key].([]float64)
	return v
}

// Float64 reads a float64 field, returning def if absent or the wrong
// type.
func (m Message) Float64(key string, def float64) float64 {
	if v, ok := m.Fields[key].(float64); ok {
		return v
	}
	return def
}
