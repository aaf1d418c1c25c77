package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	ledgererrors "vledger/core/errors"
	"vledger/indexer"
)

func (s *Server) handleListTransfers(ctx context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var filter indexer.TransferFilter
	if err := decodeParams(raw, &filter); err != nil {
		return nil, err
	}
	records, err := s.index.Transfers(ctx, filter)
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.KindUnavailable, "transfer index", err)
	}
	if records == nil {
		records = []indexer.TransferRecord{}
	}
	return records, nil
}

func (s *Server) handleIndexedChallenge(ctx context.Context, _ common.Address, raw json.RawMessage) (interface{}, error) {
	var params ChallengeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	record, err := s.index.Challenge(ctx, params.ID.Hex())
	if errors.Is(err, indexer.ErrNotIndexed) {
		return nil, ledgererrors.New(ledgererrors.KindNotFound, "challenge not indexed")
	}
	if err != nil {
		return nil, ledgererrors.Wrap(ledgererrors.KindUnavailable, "challenge index", err)
	}
	return record, nil
}
