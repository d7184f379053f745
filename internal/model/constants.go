package model

import "time"

const DefaultStoreTimeout = 500 * time.Millisecond
const DefaultFlushInterval = time.Second
const DefaultBatchSize = 25
const DefaultApplyConcurrency = 4

const HeaderContentType = "Content-Type"

// AggregateSortKey marks an aggregate row in the change log; records carrying
// it are the engine's own writes and must never be re-ingested.
const AggregateSortKey = "AGGREGATE"

const TransactionSortKeyPrefix = "TRANSACTION#"
const CustomerPartitionPrefix = "CUSTOMER#"

type ContextKey string

const KeyContextLogger ContextKey = "logger"
const KeyContextCustomerID ContextKey = "customerID"

const KeyLoggerError = "error"
