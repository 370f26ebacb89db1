package storage

// Package storage provides the persistence layer behind the assistant.
//
// It currently supports:
//   - Broker, lead, appointment and listing state
//   - Detection feeds (unread inbox, portal arrivals, price changes)
//   - The daily send ledger (broker+date -> messages sent)
