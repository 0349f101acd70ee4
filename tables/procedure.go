package tables

import "time"

// procedureRetryDelay is how long RunProcedure waits between table 8
// polls when the echoed sequence number does not yet match, giving the
// meter time to finish executing before the next poll.
const procedureRetryDelay = 250 * time.Millisecond

// procedureMaxAttempts bounds how many times RunProcedure polls table 8
// for a matching sequence echo before giving up.
const procedureMaxAttempts = 3

// RunProcedure invokes a standard (isManufacturer false) or
// manufacturer-defined (isManufacturer true) procedure by writing its
// number, a sequence number, and params to table 7, then polling table 8
// until it echoes back the same sequence number alongside a result code
// and any returned data.
func (t *TableIO) RunProcedure(procNbr int, isManufacturer bool, params []byte) (resultCode byte, data []byte, err error) {
	if procNbr < 0 || procNbr > 0x7FF {
		return 0, nil, &ProcedureError{Proc: procNbr, Code: CodeInvalidParam}
	}

	seq := t.seq
	t.seq++

	procWord := procNbr & 0x7FF
	if isManufacturer {
		procWord |= 0x800
	}
	var body []byte
	body = appendUint16Endian(body, procWord, t.endian)
	body = append(body, seq)
	body = append(body, params...)

	if err := t.WriteTable(table7, body); err != nil {
		return 0, nil, &ProcedureError{Proc: procNbr, Code: CodeGeneric}
	}

	for attempt := 0; attempt < procedureMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(procedureRetryDelay)
		}
		t.cache.invalidate(table8)
		resp, err := t.ReadTable(table8)
		if err != nil {
			return 0, nil, err
		}
		rb := rbuf(resp)
		gotSeq, err := rb.byte()
		if err != nil {
			continue
		}
		if gotSeq != seq {
			continue
		}
		code, err := rb.byte()
		if err != nil {
			return 0, nil, &ProcedureError{Proc: procNbr, Code: CodeGeneric}
		}
		rest := append([]byte(nil), rb...)
		return code, rest, nil
	}
	return 0, nil, &ProcedureError{Proc: procNbr, SequenceMismatch: true}
}
