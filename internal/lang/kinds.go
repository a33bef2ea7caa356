package lang

// Node kinds produced by the RPG grammar and the built-in scanner.
const (
	SourceFile = "source_file"

	FileDefinition          = "file_definition"
	ConstantDefinition      = "constant_definition"
	VariableDefinition      = "variable_definition"
	DataStructureDefinition = "data_structure_definition"
	SubfieldDefinition      = "subfield_definition"
	ProcedurePrototype      = "procedure_prototype"
	ProcedureDefinition     = "procedure_definition"
	ProcedureInterface      = "procedure_interface"
	ParameterDefinition     = "parameter_definition"
	SubroutineDefinition    = "subroutine_definition"
	ControlOption           = "ctl_opt"
	SimpleStatement         = "simple_statement"
	FreeDirective           = "free_directive"
	Directive               = "preprocessor_directive"

	TypeSpec   = "type_spec"
	Attribute  = "attribute"
	Expression = "expression"
	ParenGroup = "paren_group"

	Identifier        = "identifier"
	SpecialIdentifier = "special_identifier"
	IdentifierOrStar  = "identifier_or_star"
	NumberLiteral     = "number_literal"
	StringLiteral     = "string_literal"
	Error             = "ERROR"

	FixedHSpec = "fixed_h_spec"
	FixedFSpec = "fixed_f_spec"
	FixedDSpec = "fixed_d_spec"
	FixedCSpec = "fixed_c_spec"
	FixedPSpec = "fixed_p_spec"
)

// BuiltinSigil prefixes built-in function names such as %trim.
const BuiltinSigil = "%"

// IsIdentifier reports whether kind names an identifier token.
func IsIdentifier(kind string) bool {
	return kind == Identifier || kind == SpecialIdentifier
}

// IsDelimiter reports whether kind is a punctuation token that separates
// attribute arguments.
func IsDelimiter(kind string) bool {
	switch kind {
	case "(", ")", ",", ":":
		return true
	}
	return false
}
