package events

import (
	"encoding/json"
	"fmt"
)

var decoders = map[string]func(json.RawMessage) (Event, error){
	"TrancheCreated":            decodeAs[TrancheCreated],
	"EthicalComplianceVerified": decodeAs[EthicalComplianceVerified],
	"TrancheVetoed":             decodeAs[TrancheVetoed],
	"TrancheReleased":           decodeAs[TrancheReleased],
	"StateChanged":              decodeAs[StateChanged],
	"VetoInitiated":             decodeAs[VetoInitiated],
	"VetoResolved":              decodeAs[VetoResolved],
	"ExternalNotified":          decodeAs[ExternalNotified],
	"ExternalTargetUpdated":     decodeAs[ExternalTargetUpdated],
	"CouncilMemberAdded":        decodeAs[CouncilMemberAdded],
	"CouncilMemberRemoved":      decodeAs[CouncilMemberRemoved],
	"QuorumUpdated":             decodeAs[QuorumUpdated],
	"SeedbringerUpdated":        decodeAs[SeedbringerUpdated],
	"OwnershipTransferred":      decodeAs[OwnershipTransferred],
	"BondDeposited":             decodeAs[BondDeposited],
	"BondRedeemed":              decodeAs[BondRedeemed],
	"FulfillerAuthorized":       decodeAs[FulfillerAuthorized],
	"FulfillerRevoked":          decodeAs[FulfillerRevoked],
	"DocumentAnchored":          decodeAs[DocumentAnchored],
}

// Decode turns a journal entry back into its typed event.
func Decode(e Entry) (Event, error) {
	dec, ok := decoders[e.Name]
	if !ok {
		return nil, fmt.Errorf("entry %d: unknown event %q", e.Sequence, e.Name)
	}
	ev, err := dec(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("entry %d: decode %s: %w", e.Sequence, e.Name, err)
	}
	return ev, nil
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
