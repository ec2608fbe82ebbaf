package database

// Static table descriptors. Built once at process start and treated as
// read-only: the store consults them for existence checks before
// writes and for the reverse-reference scan that guards deletes.
// Foreign keys are plain integer columns here; declaring them in the
// descriptor instead of the schema is what lets the store report a
// typed error instead of a driver constraint failure.

type foreignKey struct {
	Column   string
	RefTable string
}

type tableDesc struct {
	Name        string
	Columns     []string
	ForeignKeys []foreignKey
}

const (
	tableTelescopes  = "telescopes"
	tableObsSystems  = "obs_systems"
	tablePulsars     = "pulsars"
	tableEphemerides = "ephemerides"
	tableTemplates   = "templates"
	tableRawFiles    = "raw_files"
	tableProcesses   = "processes"
	tableToas        = "toas"
	tableUsers       = "users"
)

var tables = []tableDesc{
	{
		Name:    tableTelescopes,
		Columns: []string{"id", "name", "abbreviation", "code", "x", "y", "z"},
	},
	{
		Name:    tableObsSystems,
		Columns: []string{"id", "name", "telescope_id", "frontend", "backend", "clock", "code"},
		ForeignKeys: []foreignKey{
			{Column: "telescope_id", RefTable: tableTelescopes},
		},
	},
	{
		Name:    tablePulsars,
		Columns: []string{"id", "alias", "j_name", "b_name", "j2000_ra", "j2000_dec", "master_ephemeris_id"},
		ForeignKeys: []foreignKey{
			{Column: "master_ephemeris_id", RefTable: tableEphemerides},
		},
	},
	{
		Name:    tableEphemerides,
		Columns: []string{"id", "pulsar_id", "file_path", "checksum", "created_at"},
		ForeignKeys: []foreignKey{
			{Column: "pulsar_id", RefTable: tablePulsars},
		},
	},
	{
		Name:    tableTemplates,
		Columns: []string{"id", "pulsar_id", "file_path", "checksum", "created_at"},
		ForeignKeys: []foreignKey{
			{Column: "pulsar_id", RefTable: tablePulsars},
		},
	},
	{
		Name:    tableRawFiles,
		Columns: []string{"id", "file_path", "checksum", "pulsar_id", "observer_id", "created_at"},
		ForeignKeys: []foreignKey{
			{Column: "pulsar_id", RefTable: tablePulsars},
			{Column: "observer_id", RefTable: tableObsSystems},
		},
	},
	{
		Name: tableProcesses,
		Columns: []string{
			"id", "raw_id", "ephemeris_id", "template_id",
			"n_channels", "n_subints", "method", "user_id", "created_at",
		},
		ForeignKeys: []foreignKey{
			{Column: "raw_id", RefTable: tableRawFiles},
			{Column: "ephemeris_id", RefTable: tableEphemerides},
			{Column: "template_id", RefTable: tableTemplates},
			{Column: "user_id", RefTable: tableUsers},
		},
	},
	{
		Name: tableToas,
		Columns: []string{
			"id", "process_id", "template_id", "raw_id", "pulsar_id", "observer_id",
			"mjd_int", "mjd_frac", "uncertainty", "frequency",
		},
		ForeignKeys: []foreignKey{
			{Column: "process_id", RefTable: tableProcesses},
			{Column: "template_id", RefTable: tableTemplates},
			{Column: "raw_id", RefTable: tableRawFiles},
			{Column: "pulsar_id", RefTable: tablePulsars},
			{Column: "observer_id", RefTable: tableObsSystems},
		},
	},
	{
		Name:    tableUsers,
		Columns: []string{"id", "username", "real_name", "email", "is_admin", "password_hash", "created_at"},
	},
}

// reference is one inbound foreign key: rows in Table point at the
// referenced table through Column.
type reference struct {
	Table  string
	Column string
}

// referencesTo lists every column in the schema that references the
// given table. Used by the delete guard.
func referencesTo(table string) []reference {
	var refs []reference
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == table {
				refs = append(refs, reference{Table: t.Name, Column: fk.Column})
			}
		}
	}
	return refs
}
