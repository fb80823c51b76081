package sqlguard

// Policy is an enumerable deny-list table. Changes to the lists must ship as a
// new version so callers and audit logs can tell which rules were applied.
type Policy struct {
	Version           string
	MaxLength         int
	AllowedPrefixes   []string
	ForbiddenKeywords []string
	ForbiddenCalls    []string
	// IntoKeyword is rejected only when it follows SELECT outside a cast expression.
	IntoKeyword string
	CastFuncs   []string
}

// PolicyV1 is the default policy.
var PolicyV1 = Policy{
	Version:         "v1",
	MaxLength:       4000,
	AllowedPrefixes: []string{"SELECT", "WITH"},
	ForbiddenKeywords: []string{
		// data modification
		"INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT", "TRUNCATE",
		// schema modification
		"DROP", "ALTER", "CREATE", "RENAME",
		// privileges
		"GRANT", "REVOKE", "DENY",
		// execution
		"EXEC", "EXECUTE", "CALL", "DO", "PREPARE", "DEALLOCATE", "DECLARE",
		"SET", "RESET", "LISTEN", "NOTIFY", "LOCK", "KILL", "SHUTDOWN", "DBCC",
		// bulk transfer and maintenance
		"COPY", "BULK", "LOAD", "IMPORT", "EXPORT", "ATTACH", "DETACH",
		"BACKUP", "RESTORE", "VACUUM", "ANALYZE", "REINDEX", "CLUSTER",
		"OPENROWSET", "OPENQUERY", "OPENDATASOURCE",
	},
	ForbiddenCalls: []string{
		"xp_cmdshell", "xp_regread", "xp_regwrite", "xp_dirtree", "xp_fileexist",
		"sp_executesql", "sp_configure", "sp_addlogin", "sp_addsrvrolemember",
		"sp_oacreate", "sp_oamethod",
		"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
		"pg_sleep", "pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf",
		"pg_rotate_logfile", "set_config", "lo_import", "lo_export",
		"dblink", "dblink_exec", "query_to_xml", "current_setting",
	},
	IntoKeyword: "INTO",
	CastFuncs:   []string{"CAST", "TRY_CAST", "CONVERT", "TRY_CONVERT"},
}
