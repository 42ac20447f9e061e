package oracle

import (
	"fmt"
	"strings"

	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func (a *Adapter) MapNativeType(sourceType string) (typemap.ColumnType, error) {
	base := strings.ToUpper(strings.TrimSpace(sourceType))
	switch {
	case base == "NUMBER":
		return typemap.ColumnType{Kind: typemap.KindDecimal, Precision: 38, Raw: base}, nil
	case base == "INTEGER" || base == "INT":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 32, Signed: true, Raw: base}, nil
	case base == "FLOAT" || base == "BINARY_FLOAT" || base == "BINARY_DOUBLE":
		return typemap.ColumnType{Kind: typemap.KindDecimal, Raw: base}, nil
	case base == "CHAR" || base == "NCHAR":
		return typemap.ColumnType{Kind: typemap.KindChar, Raw: base}, nil
	case base == "VARCHAR2" || base == "NVARCHAR2" || base == "VARCHAR":
		return typemap.ColumnType{Kind: typemap.KindVarChar, Raw: base}, nil
	case base == "CLOB" || base == "NCLOB" || base == "LONG":
		return typemap.ColumnType{Kind: typemap.KindClob, Raw: base}, nil
	case base == "BLOB" || base == "LONG RAW" || base == "BFILE":
		return typemap.ColumnType{Kind: typemap.KindBlob, Raw: base}, nil
	case base == "RAW":
		return typemap.ColumnType{Kind: typemap.KindVarBinary, Raw: base}, nil
	case base == "DATE":
		return typemap.ColumnType{Kind: typemap.KindDate, Raw: base}, nil
	case strings.HasPrefix(base, "TIMESTAMP"):
		return typemap.ColumnType{Kind: typemap.KindTimestamp, WithTZ: strings.Contains(base, "TIME ZONE"), Raw: base}, nil
	case base == "XMLTYPE":
		return typemap.ColumnType{Kind: typemap.KindXML, Raw: base}, nil
	default:
		return typemap.ColumnType{Kind: typemap.KindOther, Raw: base}, nil
	}
}

func (a *Adapter) RenderColumnType(t typemap.ColumnType) (string, error) {
	switch t.Kind {
	case typemap.KindInt:
		return "NUMBER(10)", nil
	case typemap.KindDecimal:
		if t.Precision > 0 {
			if t.Scale > 0 {
				return fmt.Sprintf("NUMBER(%d,%d)", t.Precision, t.Scale), nil
			}
			return fmt.Sprintf("NUMBER(%d)", t.Precision), nil
		}
		return "NUMBER", nil
	case typemap.KindBool:
		return "NUMBER(1)", nil
	case typemap.KindChar:
		if t.Length == 0 {
			t.Length = 1
		}
		return fmt.Sprintf("CHAR(%d)", t.Length), nil
	case typemap.KindVarChar:
		if t.Length == 0 || t.Length > 4000 {
			return "VARCHAR2(4000)", nil
		}
		return fmt.Sprintf("VARCHAR2(%d)", t.Length), nil
	case typemap.KindText, typemap.KindClob, typemap.KindXML:
		return "CLOB", nil
	case typemap.KindBinary, typemap.KindVarBinary:
		return "RAW(2000)", nil
	case typemap.KindBlob:
		return "BLOB", nil
	case typemap.KindDate:
		return "DATE", nil
	case typemap.KindTime:
		return "VARCHAR2(32)", nil
	case typemap.KindTimestamp:
		if t.WithTZ {
			return "TIMESTAMP WITH TIME ZONE", nil
		}
		return "TIMESTAMP", nil
	default:
		return "VARCHAR2(4000)", nil
	}
}

func (a *Adapter) RenderCreateTable(targetSchema string, t schema.Table, overrides typemap.Overrides) (string, error) {
	var cols []string
	for _, c := range t.Columns {
		path := fmt.Sprintf("%s.%s.%s", targetSchema, t.Name, c.Name)
		ddlType, err := typemap.Resolve(path, c.Generic, overrides, nil, a.RenderColumnType)
		if err != nil {
			return "", err
		}
		def := fmt.Sprintf("%s %s", c.Name, ddlType)
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		cols = append(cols, def)
	}
	for _, c := range t.Constraints {
		if ddl := constraintDDL(c); ddl != "" {
			cols = append(cols, ddl)
		}
	}
	return fmt.Sprintf("CREATE TABLE %s.%s (\n  %s\n)", targetSchema, t.Name, strings.Join(cols, ",\n  ")), nil
}

func constraintDDL(c schema.Constraint) string {
	switch c.Kind {
	case schema.ConstraintPrimaryKey:
		return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", c.Name, strings.Join(c.Columns, ", "))
	case schema.ConstraintUnique:
		return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", c.Name, strings.Join(c.Columns, ", "))
	case schema.ConstraintForeignKey:
		return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s (%s)",
			c.Name, strings.Join(c.Columns, ", "), c.ReferencedSchema, c.ReferencedTable, strings.Join(c.ReferencedColumns, ", "))
	case schema.ConstraintCheck:
		return fmt.Sprintf("CONSTRAINT %s CHECK (%s)", c.Name, c.CheckExpr)
	default:
		return ""
	}
}

func (a *Adapter) RenderCreateIndex(targetSchema string, t schema.Table, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s.%s (%s)", unique, idx.Name, targetSchema, t.Name, strings.Join(idx.Columns, ", "))
}

func (a *Adapter) RenderCreateView(targetSchema string, t schema.Table, script, sourceSchema string) string {
	body := rewriteSchemaQualifiers(script, sourceSchema, targetSchema)
	kind := "VIEW"
	if t.Kind == schema.KindMaterializedView {
		kind = "MATERIALIZED VIEW"
	}
	return fmt.Sprintf("CREATE %s %s.%s AS %s", kind, targetSchema, t.Name, body)
}

// rewriteSchemaQualifiers replaces "<sourceSchema>." qualifiers, quoted or
// unquoted, with the target schema, so a view's body resolves against
// the newly materialized tables instead of the original source schema.
func rewriteSchemaQualifiers(script, sourceSchema, targetSchema string) string {
	replacer := strings.NewReplacer(
		sourceSchema+".", targetSchema+".",
		strings.ToUpper(sourceSchema)+".", targetSchema+".",
		`"`+sourceSchema+`".`, targetSchema+".",
		`"`+strings.ToUpper(sourceSchema)+`".`, targetSchema+".",
	)
	return replacer.Replace(script)
}
