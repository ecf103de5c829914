package sqlguard

// allowedKeywords is the read-only SELECT vocabulary: clauses, joins,
// set operations, aggregates, window functions and common scalar functions.
var allowedKeywords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {},
	"RIGHT": {}, "FULL": {}, "OUTER": {}, "CROSS": {}, "ON": {}, "USING": {},
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "EXISTS": {}, "BETWEEN": {},
	"LIKE": {}, "ILIKE": {}, "ORDER": {}, "BY": {}, "GROUP": {}, "HAVING": {},
	"LIMIT": {}, "OFFSET": {}, "DISTINCT": {}, "AS": {}, "ASC": {}, "DESC": {},
	"NULL": {}, "IS": {}, "CASE": {}, "WHEN": {}, "THEN": {}, "ELSE": {},
	"END": {}, "UNION": {}, "INTERSECT": {}, "EXCEPT": {}, "ALL": {},
	"WITH": {}, "RECURSIVE": {}, "CAST": {}, "EXTRACT": {}, "DATE_TRUNC": {},
	"COALESCE": {}, "NULLIF": {}, "COUNT": {}, "SUM": {}, "AVG": {}, "MAX": {},
	"MIN": {}, "STRING_AGG": {}, "ARRAY_AGG": {}, "ROW_NUMBER": {}, "RANK": {},
	"DENSE_RANK": {}, "OVER": {}, "PARTITION": {}, "WINDOW": {},
	"CURRENT_DATE": {}, "CURRENT_TIME": {}, "CURRENT_TIMESTAMP": {},
	"INTERVAL": {}, "NOW": {}, "GREATEST": {}, "LEAST": {}, "SUBSTRING": {},
	"LENGTH": {}, "TRIM": {}, "UPPER": {}, "LOWER": {}, "REPLACE": {},
	"CONCAT": {}, "POSITION": {}, "SPLIT_PART": {},
}

// forbiddenKeywords are write, DDL and admin verbs. Any occurrence anywhere
// in the statement is a hard error. EXPLAIN and ANALYZE stay here even though
// they are read-only: their output exposes planner internals.
var forbiddenKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "CREATE": {},
	"ALTER": {}, "TRUNCATE": {}, "GRANT": {}, "REVOKE": {}, "EXECUTE": {},
	"CALL": {}, "DECLARE": {}, "SET": {}, "RESET": {}, "COPY": {}, "BULK": {},
	"LOAD": {}, "UNLOAD": {}, "BACKUP": {}, "RESTORE": {}, "MERGE": {},
	"UPSERT": {}, "EXPLAIN": {}, "ANALYZE": {}, "VACUUM": {}, "CLUSTER": {},
	"REINDEX": {},
}

// knownFunctions are scalar functions accepted in call position beyond the
// allow set. An unlisted name in call position is an unrecognized keyword.
var knownFunctions = map[string]struct{}{
	"CURRENT_USER": {}, "SESSION_USER": {}, "USER": {}, "VERSION": {},
	"TO_CHAR": {}, "TO_DATE": {}, "TO_NUMBER": {}, "TO_TIMESTAMP": {},
	"AGE": {}, "CLOCK_TIMESTAMP": {}, "TIMEOFDAY": {},
	"TRANSACTION_TIMESTAMP": {}, "STATEMENT_TIMESTAMP": {},
	"MD5": {}, "SHA1": {}, "SHA224": {}, "SHA256": {}, "SHA384": {},
	"SHA512": {}, "ENCODE": {}, "DECODE": {}, "FORMAT": {}, "LPAD": {},
	"RPAD": {}, "REPEAT": {}, "REVERSE": {}, "TRANSLATE": {}, "ASCII": {},
	"CHR": {}, "INITCAP": {}, "ABS": {}, "CEIL": {}, "CEILING": {},
	"FLOOR": {}, "ROUND": {}, "TRUNC": {}, "SIGN": {}, "EXP": {}, "LN": {},
	"LOG": {}, "POWER": {}, "SQRT": {}, "RANDOM": {}, "SIN": {}, "COS": {},
	"TAN": {}, "ASIN": {}, "ACOS": {}, "ATAN": {}, "ATAN2": {},
	"DEGREES": {}, "RADIANS": {}, "PI": {},
}
