package edenlog

// LogContext carries the fields the core storage engine attaches to every
// log line: which component emitted it, what operation was in flight, and
// (when relevant) which inode or object the operation concerned.
type LogContext struct {
	Component  string
	Operation  string
	InodeNum   uint64
	ObjectID   string
	ProcessID  int64
	Additional map[string]interface{}
}

func NewLogContext(operation string) LogContext {
	return LogContext{Operation: operation, Additional: map[string]interface{}{}}
}

func (lc LogContext) WithComponent(component string) LogContext {
	lc.Component = component
	return lc
}

func (lc LogContext) WithInode(ino uint64) LogContext {
	lc.InodeNum = ino
	return lc
}

func (lc LogContext) WithObjectID(id string) LogContext {
	lc.ObjectID = id
	return lc
}

func (lc LogContext) WithProcessID(pid int64) LogContext {
	lc.ProcessID = pid
	return lc
}

func (lc LogContext) With(key string, value interface{}) LogContext {
	if lc.Additional == nil {
		lc.Additional = map[string]interface{}{}
	}
	lc.Additional[key] = value
	return lc
}

// Logger materializes a Logger carrying every field set on lc.
func (lc LogContext) Logger() Logger {
	c := DefaultLogger.With()
	if lc.Component != "" {
		c = c.Str("component", lc.Component)
	}
	if lc.Operation != "" {
		c = c.Str("operation", lc.Operation)
	}
	if lc.InodeNum != 0 {
		c = c.Uint64("inode", lc.InodeNum)
	}
	if lc.ObjectID != "" {
		c = c.Str("object_id", lc.ObjectID)
	}
	if lc.ProcessID != 0 {
		c = c.Int64("pid", lc.ProcessID)
	}
	for k, v := range lc.Additional {
		c = c.Interface(k, v)
	}
	return c.Logger()
}
