package method

// pairedLists names list entries whose lengths must agree.
var pairedLists = map[Kind][2]string{
	CA: {TagPotentialSteps, TagPulseLength},
}

// Validate checks ps against the reference table of kind. It stops at the
// first failure; there is no partial acceptance. On success it returns a copy
// of ps that the caller may attach to an experiment record.
//
// Checks run in order: amount, tag per position, list capacity and pairing,
// bounds per position (derived bounds computed from ps first), scan range.
func Validate(kind Kind, ps Params) (Params, error) {
	rows, ok := Table(kind)
	if !ok {
		return nil, &Error{Kind: kind, Pos: -1, Err: ErrMethodUnknown}
	}
	if len(ps) != len(rows) {
		return nil, &Error{Kind: kind, Pos: -1, Err: ErrAmount}
	}

	for i, r := range rows {
		if ps[i].Tag != r.Tag {
			return nil, &Error{Kind: kind, Pos: i, Tag: ps[i].Tag, Err: ErrParamNotFound}
		}
		if ps[i].IsList() != r.List {
			return nil, &Error{Kind: kind, Pos: i, Tag: r.Tag, Err: ErrParamBound}
		}
	}

	for i, r := range rows {
		if r.List && len(ps[i].Values) > ExperimentBuffer {
			return nil, &Error{Kind: kind, Pos: -1, Tag: r.Tag, Err: ErrListOverflow}
		}
	}
	if pair, ok := pairedLists[kind]; ok {
		a, _ := ps.Get(pair[0])
		b, _ := ps.Get(pair[1])
		if len(a.Values) != len(b.Values) {
			return nil, &Error{Kind: kind, Pos: -1, Err: ErrListMismatch}
		}
	}

	sp := derive(kind, rows, ps)

	for i, r := range rows {
		if r.List {
			if len(ps[i].Values) == 0 {
				return nil, &Error{Kind: kind, Pos: i, Tag: r.Tag, Err: ErrParamBound}
			}
			for _, v := range ps[i].Values {
				if !within(v, r) {
					return nil, &Error{Kind: kind, Pos: i, Tag: r.Tag, Err: ErrParamBound}
				}
			}
			continue
		}
		if !within(ps[i].Value, r) {
			return nil, &Error{Kind: kind, Pos: i, Tag: r.Tag, Err: ErrParamBound}
		}
	}

	if sp != nil && sp.width >= sp.limit {
		return nil, &Error{Kind: kind, Pos: -1, Err: ErrScanRange}
	}

	return ps.Clone(), nil
}

// within fails NaN as well as values outside [Lower, Upper].
func within(v float64, r Row) bool {
	return v >= r.Lower && v <= r.Upper
}

// Prepare converts exp to its parameter list and validates it.
func Prepare(exp Experiment) (Params, []Notice, error) {
	ps, notices := exp.Params()
	valid, err := Validate(exp.Kind(), ps)
	if err != nil {
		return nil, notices, err
	}
	return valid, notices, nil
}
