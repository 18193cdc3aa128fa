package catalog

import (
	"strconv"
	"strings"
)

// Table describes the INSERT target of one SQL output file.
type Table struct {
	Name    string
	Columns []string
}

var (
	brandsTable = Table{"brands", []string{"id", "name", "is_deleted", "created_at", "updated_at"}}

	productsTable = Table{"products", []string{
		"id", "product_detail_info_id", "brand_id", "category_id", "delivery_policy_id",
		"use_restock_noti", "product_name", "product_code", "search_keywords",
		"exposure_status", "sale_status", "description", "is_cancelable", "is_deleted",
		"created_at", "updated_at",
	}}

	mainImagesTable = Table{"product_main_images", []string{"product_id", "image_type", "display_order", "image_url"}}

	optionsTable = Table{"product_options", []string{
		"product_id", "option_name", "purchase_price", "selling_price",
		"current_stock", "initial_stock", "safety_stock", "image_url", "display_order",
		"is_deleted", "created_at", "updated_at",
	}}

	detailImagesTable = Table{"product_detail_images", []string{"product_id", "display_order", "image_url"}}
)

// Header is the statement prefix, ending in VALUES.
func (t Table) Header() string {
	return "INSERT INTO " + t.Name + " (" + strings.Join(t.Columns, ", ") + ") VALUES"
}

// Render is one complete statement holding rows. Without rows it is the
// bare header closed by a semicolon.
func (t Table) Render(rows []string) string {
	if len(rows) == 0 {
		return t.Header() + ";"
	}
	return t.Header() + "\n" + strings.Join(rows, ",\n") + ";"
}

// Block is Render followed by a blank line, for files that collect one
// statement per product.
func (t Table) Block(rows []string) string {
	return t.Render(rows) + "\n\n"
}

// Merge extends the single statement held in content with rows. Blank
// content starts from the header. The trailing semicolon is moved behind
// the new rows.
func (t Table) Merge(content string, rows []string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		content = t.Header()
	}
	content = strings.TrimRight(strings.TrimSuffix(content, ";"), " \t\r\n")
	if len(rows) == 0 {
		return content + ";"
	}

	var b strings.Builder
	b.WriteString(content)
	for i, row := range rows {
		if i == 0 && strings.HasSuffix(content, "VALUES") {
			b.WriteString("\n")
		} else {
			b.WriteString(",\n")
		}
		b.WriteString(row)
	}
	b.WriteString(";")
	return b.String()
}

// Quote renders s as a SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Row renders a parenthesised value tuple. Strings are quoted, bools and
// integers printed bare, and Raw values emitted as given.
func Row(values ...any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case string:
			parts[i] = Quote(v)
		case Raw:
			parts[i] = string(v)
		case int:
			parts[i] = strconv.Itoa(v)
		case bool:
			parts[i] = strings.ToUpper(strconv.FormatBool(v))
		default:
			panic("catalog: unsupported SQL value")
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Raw is a SQL fragment such as NOW() that must not be quoted.
type Raw string

const sqlNow Raw = "NOW()"
