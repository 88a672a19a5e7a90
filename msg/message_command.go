package msg

// NewCommand creates a request that runs a command against the "$cmd"
// pseudo-collection of a database using OP_QUERY.
func NewCommand(requestID int32, dbName string, slaveOK bool, cmd interface{}) Request {
	flags := QueryFlags(0)
	if slaveOK {
		flags |= SlaveOK
	}

	return &Query{
		ReqID:              requestID,
		Flags:              flags,
		FullCollectionName: dbName + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	}
}

// NewMsgCommand creates a request that runs a command using OP_MSG. The
// target database travels in the "$db" field of the body section.
func NewMsgCommand(requestID int32, dbName string, cmd []byte) Request {
	return &Msg{
		ReqID: requestID,
		Sections: []Section{
			SectionBody{Document: appendStringElement(cmd, "$db", dbName)},
		},
	}
}

// appendStringElement splices a string element onto the end of an
// encoded document, patching the document length in place.
func appendStringElement(doc []byte, key, value string) []byte {
	b := make([]byte, 0, len(doc)+len(key)+len(value)+7)
	b = append(b, doc[:len(doc)-1]...)
	b = append(b, 0x02)
	b = addCString(b, key)
	b = addInt32(b, int32(len(value)+1))
	b = addCString(b, value)
	b = append(b, 0)
	setInt32(b, 0, int32(len(b)))
	return b
}
