package model

// FieldRole identifies the logical meaning of a dataset column.
type FieldRole string

// Logical field roles resolved by a FieldMapping.
const (
	RoleVendor   FieldRole = "vendor"
	RoleProduct  FieldRole = "product"
	RoleSKU      FieldRole = "sku"
	RoleMarket   FieldRole = "market"
	RoleLanguage FieldRole = "language"
)

// Fallback column names used when a mapping omits a role.
const (
	FallbackMarketColumn   = "market"
	FallbackLanguageColumn = "language"
)

// FieldMapping maps logical roles to physical column names for one dataset.
// Built once per dataset before matching starts; immutable for the run.
type FieldMapping map[FieldRole]string

// Column resolves a role to its column name, falling back to the provided
// default when the mapping omits the role.
func (m FieldMapping) Column(role FieldRole, fallback string) string {
	if col, ok := m[role]; ok && col != "" {
		return col
	}
	return fallback
}

// Vendor returns the vendor column name.
func (m FieldMapping) Vendor() string { return m[RoleVendor] }

// Product returns the product column name.
func (m FieldMapping) Product() string { return m[RoleProduct] }

// SKU returns the SKU column name.
func (m FieldMapping) SKU() string { return m[RoleSKU] }

// Market returns the market column name, defaulting to "market".
func (m FieldMapping) Market() string { return m.Column(RoleMarket, FallbackMarketColumn) }

// Language returns the language column name, defaulting to "language".
func (m FieldMapping) Language() string { return m.Column(RoleLanguage, FallbackLanguageColumn) }
