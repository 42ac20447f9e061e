package mysql

import (
	"fmt"
	"strings"

	"github.com/sqlbridge/migrator/internal/schema"
	"github.com/sqlbridge/migrator/internal/typemap"
)

func (a *Adapter) MapNativeType(sourceType string) (typemap.ColumnType, error) {
	base := strings.ToLower(strings.TrimSpace(sourceType))
	switch base {
	case "tinyint":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 8, Raw: base}, nil
	case "smallint":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 16, Signed: true, Raw: base}, nil
	case "mediumint", "int", "integer":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 32, Signed: true, Raw: base}, nil
	case "bigint":
		return typemap.ColumnType{Kind: typemap.KindInt, Width: 64, Signed: true, Raw: base}, nil
	case "decimal", "numeric":
		return typemap.ColumnType{Kind: typemap.KindDecimal, Raw: base}, nil
	case "float", "double":
		return typemap.ColumnType{Kind: typemap.KindDecimal, Raw: base}, nil
	case "bit":
		return typemap.ColumnType{Kind: typemap.KindBool, Raw: base}, nil
	case "char":
		return typemap.ColumnType{Kind: typemap.KindChar, Raw: base}, nil
	case "varchar":
		return typemap.ColumnType{Kind: typemap.KindVarChar, Raw: base}, nil
	case "tinytext", "text", "mediumtext", "longtext":
		return typemap.ColumnType{Kind: typemap.KindClob, Raw: base}, nil
	case "binary":
		return typemap.ColumnType{Kind: typemap.KindBinary, Raw: base}, nil
	case "varbinary":
		return typemap.ColumnType{Kind: typemap.KindVarBinary, Raw: base}, nil
	case "tinyblob", "blob", "mediumblob", "longblob":
		return typemap.ColumnType{Kind: typemap.KindBlob, Raw: base}, nil
	case "date":
		return typemap.ColumnType{Kind: typemap.KindDate, Raw: base}, nil
	case "time":
		return typemap.ColumnType{Kind: typemap.KindTime, Raw: base}, nil
	case "datetime", "timestamp":
		return typemap.ColumnType{Kind: typemap.KindTimestamp, Raw: base}, nil
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
			return "int", nil
		case t.Width > 8:
			return "smallint", nil
		default:
			return "tinyint", nil
		}
	case typemap.KindDecimal:
		if t.Precision > 0 {
			if t.Scale > 0 {
				return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale), nil
			}
			return fmt.Sprintf("decimal(%d)", t.Precision), nil
		}
		return "double", nil
	case typemap.KindBool:
		return "tinyint(1)", nil
	case typemap.KindChar:
		if t.Length == 0 {
			t.Length = 1
		}
		return fmt.Sprintf("char(%d)", t.Length), nil
	case typemap.KindVarChar:
		if t.Length == 0 || t.Length > 16383 {
			return "text", nil
		}
		return fmt.Sprintf("varchar(%d)", t.Length), nil
	case typemap.KindText, typemap.KindClob, typemap.KindXML:
		return "longtext", nil
	case typemap.KindBinary, typemap.KindVarBinary:
		if t.Length == 0 {
			return "varbinary(255)", nil
		}
		return fmt.Sprintf("varbinary(%d)", t.Length), nil
	case typemap.KindBlob:
		return "longblob", nil
	case typemap.KindDate:
		return "date", nil
	case typemap.KindTime:
		return "time", nil
	case typemap.KindTimestamp:
		return "datetime", nil
	default:
		return "longtext", nil
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
		def := fmt.Sprintf("`%s` %s", c.Name, ddlType)
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
	return fmt.Sprintf("CREATE TABLE `%s`.`%s` (\n  %s\n)", targetSchema, t.Name, strings.Join(cols, ",\n  ")), nil
}

func constraintDDL(c schema.Constraint) string {
	switch c.Kind {
	case schema.ConstraintPrimaryKey:
		return fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(c.Columns, ", "))
	case schema.ConstraintUnique:
		return fmt.Sprintf("CONSTRAINT `%s` UNIQUE (%s)", c.Name, strings.Join(c.Columns, ", "))
	case schema.ConstraintForeignKey:
		return fmt.Sprintf("CONSTRAINT `%s` FOREIGN KEY (%s) REFERENCES `%s`.`%s` (%s)",
			c.Name, strings.Join(c.Columns, ", "), c.ReferencedSchema, c.ReferencedTable, strings.Join(c.ReferencedColumns, ", "))
	case schema.ConstraintCheck:
		return fmt.Sprintf("CONSTRAINT `%s` CHECK (%s)", c.Name, c.CheckExpr)
	default:
		return ""
	}
}

func (a *Adapter) RenderCreateIndex(targetSchema string, t schema.Table, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX `%s` ON `%s`.`%s` (%s)", unique, idx.Name, targetSchema, t.Name, strings.Join(idx.Columns, ", "))
}

func (a *Adapter) RenderCreateView(targetSchema string, t schema.Table, script, sourceSchema string) string {
	body := strings.ReplaceAll(script, sourceSchema+".", targetSchema+".")
	return fmt.Sprintf("CREATE VIEW `%s`.`%s` AS %s", targetSchema, t.Name, body)
}
