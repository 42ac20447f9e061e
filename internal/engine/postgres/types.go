package postgres

import (
	"fmt"
	"strings"

	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func (a *Adapter) MapNativeType(sourceType string) (typemap.ColumnType, error) {
	base := strings.ToLower(strings.TrimSpace(sourceType))
	switch {
	case strings.HasPrefix(base, "integer") || base == "int4":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 32, Signed: true, Raw: base}, nil
	case strings.HasPrefix(base, "bigint") || base == "int8":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 64, Signed: true, Raw: base}, nil
	case strings.HasPrefix(base, "smallint") || base == "int2":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 16, Signed: true, Raw: base}, nil
	case strings.HasPrefix(base, "numeric") || strings.HasPrefix(base, "decimal"):
		return typemap.ColumnType{Kind: typemap.KindDecimal, Raw: base}, nil
	case base == "real" || base == "double precision":
		return typemap.ColumnType{Kind: typemap.KindDecimal, Raw: base}, nil
	case base == "boolean":
		return typemap.ColumnType{Kind: typemap.KindBool, Raw: base}, nil
	case strings.HasPrefix(base, "character varying") || strings.HasPrefix(base, "varchar"):
		return typemap.ColumnType{Kind: typemap.KindVarChar, Raw: base}, nil
	case strings.HasPrefix(base, "character") || strings.HasPrefix(base, "char"):
		return typemap.ColumnType{Kind: typemap.KindChar, Raw: base}, nil
	case base == "text":
		return typemap.ColumnType{Kind: typemap.KindText, Raw: base}, nil
	case base == "bytea":
		return typemap.ColumnType{Kind: typemap.KindBlob, Raw: base}, nil
	case base == "date":
		return typemap.ColumnType{Kind: typemap.KindDate, Raw: base}, nil
	case strings.HasPrefix(base, "time without") || strings.HasPrefix(base, "time with"):
		return typemap.ColumnType{Kind: typemap.KindTime, WithTZ: strings.Contains(base, "with time zone"), Raw: base}, nil
	case strings.HasPrefix(base, "timestamp"):
		return typemap.ColumnType{Kind: typemap.KindTimestamp, WithTZ: strings.Contains(base, "with time zone"), Raw: base}, nil
	case base == "xml":
		return typemap.ColumnType{Kind: typemap.KindXML, Raw: base}, nil
	default:
		return typemap.ColumnType{Kind: typemap.KindOther, Raw: base}, nil
	}
}

func (a *Adapter) RenderColumnType(t typemap.ColumnType) (string, error) {
	switch t.Kind {
	case typemap.KindInt:
		switch {
		case t.Width > 32:
			return "bigint", nil
		case t.Width > 16:
			return "integer", nil
		default:
			return "smallint", nil
		}
	case typemap.KindDecimal:
		if t.Precision > 0 {
			if t.Scale > 0 {
				return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale), nil
			}
			return fmt.Sprintf("numeric(%d)", t.Precision), nil
		}
		return "numeric", nil
	case typemap.KindBool:
		return "boolean", nil
	case typemap.KindChar:
		if t.Length == 0 {
			t.Length = 1
		}
		return fmt.Sprintf("character(%d)", t.Length), nil
	case typemap.KindVarChar:
		if t.Length == 0 {
			return "text", nil
		}
		return fmt.Sprintf("character varying(%d)", t.Length), nil
	case typemap.KindText, typemap.KindClob:
		return "text", nil
	case typemap.KindXML:
		return "xml", nil
	case typemap.KindBinary, typemap.KindVarBinary, typemap.KindBlob:
		return "bytea", nil
	case typemap.KindDate:
		return "date", nil
	case typemap.KindTime:
		if t.WithTZ {
			return "time with time zone", nil
		}
		return "time without time zone", nil
	case typemap.KindTimestamp:
		if t.WithTZ {
			return "timestamp with time zone", nil
		}
		return "timestamp without time zone", nil
	default:
		return "text", nil
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
		def := fmt.Sprintf("%s %s", quoteIdent(c.Name), ddlType)
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
	return fmt.Sprintf("CREATE TABLE %s.%s (\n  %s\n)", targetSchema, quoteIdent(t.Name), strings.Join(cols, ",\n  ")), nil
}

func quoteIdent(name string) string {
	return name
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
	body := strings.ReplaceAll(script, sourceSchema+".", targetSchema+".")
	kind := "VIEW"
	if t.Kind == schema.KindMaterializedView {
		kind = "MATERIALIZED VIEW"
	}
	return fmt.Sprintf("CREATE %s %s.%s AS %s", kind, targetSchema, t.Name, body)
}
