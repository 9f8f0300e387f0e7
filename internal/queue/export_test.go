package queue

var (
	EncodeRecord = encodeRecord
	DecodeRecord = decodeRecord
)
