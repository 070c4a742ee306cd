package benchmark

// BuiltinDataset is the dataset served when no benchmark path is configured.
const BuiltinDataset = "cbench-v0"

var builtinSources = map[string]string{
	"crc32": `; table-driven crc32 inner step
%poly = const 3988292384
%mask = const 255
%zero = const 0
%one = const 1
%crc = load @crc
%byte = load @byte
%x = sub %crc, %byte
%idx = mul %x, %mask
%idx2 = mul %x, %mask
nop
%t = load @table
%shift = mul %crc, %one
%lo = add %shift, %zero
%mix = add %t, %lo
%dead = mul %poly, %poly
nop
store @crc, %mix
ret %mix
`,
	"qsort": `; partition step of quicksort
%lo = load @lo
%hi = load @hi
%two = const 2
%sum = add %lo, %hi
%mid = mul %sum, %two
%pivot = load @pivot
%a = sub %pivot, %lo
%b = sub %pivot, %lo
%c = add %a, %b
%k = const 7
%k2 = const 7
%w = mul %k, %k2
nop
call @swap, %lo, %hi
store @mid, %mid
%r = add %c, %w
ret %r
`,
	"sha": `; one sha round, partially folded
%a = load @a
%b = load @b
%k0 = const 1518500249
%k1 = const 0
%k = add %k0, %k1
%f = add %a, %b
%g = add %a, %b
%h = add %f, %g
%unused = sub %h, %k
nop
nop
%r = add %h, %k
store @a, %r
call @rotate, %r
ret %r
`,
}

// BuiltinStore returns a MemoryStore holding the builtin dataset.
func BuiltinStore() *MemoryStore {
	entries := make([]Entry, 0, len(builtinSources))
	for name, src := range builtinSources {
		entries = append(entries, Entry{Key: BuiltinDataset + "/" + name, Value: []byte(src)})
	}
	return NewMemoryStore(entries...)
}
