package pathconn

var (
	CompressPayload   = compressPayload
	DecompressPayload = decompressPayload
)
