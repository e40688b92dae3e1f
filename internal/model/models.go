package model

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&StagedContext{},
		&RunRecord{},
	}
}
